package service

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrCustomerInactive  = errors.New("customer is inactive")
	ErrMessagingDisabled = errors.New("whatsapp messaging is disabled")
	ErrContentTooLong    = errors.New("message content too long")
)

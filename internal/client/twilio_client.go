package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const whatsappPrefix = "whatsapp:"

// TwilioClient sends WhatsApp messages through the Twilio Messages API.
type TwilioClient struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
}

func NewTwilioClient(baseURL, accountSID, authToken, from string) *TwilioClient {
	return &TwilioClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       whatsappAddress(from),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Send posts one message to the given phone number and returns the message SID.
func (c *TwilioClient) Send(ctx context.Context, phoneNumber, message string) (string, error) {
	form := url.Values{}
	form.Set("To", whatsappAddress(phoneNumber))
	form.Set("From", c.from)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if sr.SID == "" {
		return "", fmt.Errorf("missing sid in response body=%q", string(body))
	}

	return sr.SID, nil
}

func whatsappAddress(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(strings.ToLower(phone), whatsappPrefix) {
		return whatsappPrefix + phone[len(whatsappPrefix):]
	}
	return whatsappPrefix + phone
}

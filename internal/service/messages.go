package service

import (
	"fmt"
	"time"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
)

// Outcome is the result of interpreting one inbound reply.
type Outcome string

const (
	OutcomeCustomerNotFound  Outcome = "customer_not_found"
	OutcomeNoPendingShipment Outcome = "no_pending_shipment"
	OutcomeUnknownIntent     Outcome = "unknown_intent"
	OutcomeConfirmed         Outcome = "confirmed"
	OutcomeRejected          Outcome = "rejected"
)

const TestMessage = "🧪 Mensaje de prueba del servicio de entregas. Si recibe esto, el envío por WhatsApp funciona correctamente."

const notFoundText = "Lo sentimos, no tenemos entregas pendientes de confirmación asociadas a su número."

// Composer renders the customer-facing texts. Dates and times are shown in
// the reference timezone.
type Composer struct {
	loc *time.Location
}

func NewComposer(loc *time.Location) *Composer {
	if loc == nil {
		loc = time.UTC
	}
	return &Composer{loc: loc}
}

func (c *Composer) date(t time.Time) string {
	return t.In(c.loc).Format(model.DateLayout)
}

func (c *Composer) hour(t time.Time) string {
	return t.In(c.loc).Format(model.HourLayout)
}

// Prompt is the initial confirmation request for a shipment.
func (c *Composer) Prompt(cust model.Customer, s model.Shipment) string {
	return fmt.Sprintf(
		"Estimado/a %s,\n\n"+
			"Le informamos que tenemos programada una entrega para su establecimiento:\n\n"+
			"📦 *Pedido:* %s\n"+
			"📅 *Fecha:* %s\n"+
			"🕐 *Hora prevista:* %s\n\n"+
			"¿Podrá recibir la entrega en el horario indicado?\n\n"+
			"Por favor, responda con *SI* o *NO* para confirmar.",
		cust.Name, s.Description, c.date(s.PlannedDeliveryTime), c.hour(s.PlannedDeliveryTime),
	)
}

// Reply picks the answer for an outcome. Both not-found outcomes share a text.
func (c *Composer) Reply(outcome Outcome, cust *model.Customer, s *model.Shipment) string {
	switch outcome {
	case OutcomeConfirmed:
		if cust == nil || s == nil {
			return "Gracias por su confirmación."
		}
		return fmt.Sprintf(
			"Perfecto, %s.\n\n"+
				"✅ Hemos confirmado su disponibilidad para recibir:\n"+
				"📦 %s\n"+
				"🕐 %s a las %s\n\n"+
				"Gracias por su confirmación. Le esperamos en el horario indicado.",
			cust.Name, s.Description, c.date(s.PlannedDeliveryTime), c.hour(s.PlannedDeliveryTime),
		)
	case OutcomeRejected:
		name := ""
		if cust != nil {
			name = ", " + cust.Name
		}
		slot := "Lamentamos que el horario no le convenga."
		if s != nil {
			slot = fmt.Sprintf(
				"Lamentamos que el horario previsto para %s (%s a las %s) no le convenga.",
				s.Description, c.date(s.PlannedDeliveryTime), c.hour(s.PlannedDeliveryTime),
			)
		}
		return fmt.Sprintf(
			"Entendido%s.\n\n"+
				"%s\n\n"+
				"¿Podría indicarnos qué horarios le vendrían mejor para recibir la entrega?\n\n"+
				"Por ejemplo: mañana por la mañana, esta tarde después de las 15:00, etc.",
			name, slot,
		)
	case OutcomeUnknownIntent:
		if s == nil {
			return "Por favor, responda con *SI* o *NO* para confirmar la entrega."
		}
		return fmt.Sprintf(
			"Por favor, responda con *SI* o *NO* para confirmar la entrega de %s prevista el %s a las %s.",
			s.Description, c.date(s.PlannedDeliveryTime), c.hour(s.PlannedDeliveryTime),
		)
	default:
		return notFoundText
	}
}

// Package simulated stands in for the WhatsApp and SMS gateways: every
// message is written to the log instead of being sent.
package simulated

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/vitallink/internal/sos"
)

// Channel is a delivery channel.
type Channel string

const (
	WhatsApp Channel = "whatsapp"
	SMS      Channel = "sms"
)

const unknownLocation = "unknown location"

// Message is one simulated delivery.
type Message struct {
	Channel  Channel
	Contact  sos.Contact
	AlertRef string
	Text     string
}

// Notifier logs a WhatsApp and an SMS message per contact. It implements
// sos.Notifier and never fails.
type Notifier struct {
	logger log.Logger
}

// New creates a new simulated notifier.
func New(logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{logger: logger.With("notifier", "simulated")}
}

// Notify logs the messages for c and reports success.
func (n *Notifier) Notify(ctx context.Context, c sos.Contact, ac sos.AlertContext) bool {
	for _, m := range buildMessages(c, ac) {
		n.logger.Info(ctx, "simulated message sent",
			"channel", m.Channel,
			"priority", m.Contact.Priority,
			"contact", m.Contact.Name,
			"phone", m.Contact.PhoneNumber,
			"alert_ref", m.AlertRef,
			"text", m.Text,
		)
	}
	return true
}

func buildMessages(c sos.Contact, ac sos.AlertContext) []Message {
	text := messageText(ac)
	return []Message{
		{Channel: WhatsApp, Contact: c, AlertRef: ac.Ref, Text: text},
		{Channel: SMS, Contact: c, AlertRef: ac.Ref, Text: text},
	}
}

func messageText(ac sos.AlertContext) string {
	loc := ac.Location
	if loc == "" {
		loc = unknownLocation
	}
	return fmt.Sprintf("SOS! Abnormal Vitals detected at %s. Reasons: %s", loc, ac.Reason)
}

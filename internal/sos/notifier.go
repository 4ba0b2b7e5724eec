package sos

import "context"

// AlertContext is what a contact is told about an SOS.
type AlertContext struct {
	Ref      string
	Location string
	Reason   string
}

// Notifier delivers an SOS to one contact over every channel it supports.
type Notifier interface {
	Notify(ctx context.Context, c Contact, ac AlertContext) bool
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, c Contact, ac AlertContext) bool

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, c Contact, ac AlertContext) bool {
	return f(ctx, c, ac)
}

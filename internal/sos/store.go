package sos

import "context"

// ContactStore is the persistence interface for emergency contacts.
type ContactStore interface {
	// ListContacts returns contacts by ascending priority, ties in insertion
	// order. limit <= 0 returns all of them.
	ListContacts(ctx context.Context, limit int) ([]Contact, error)

	// UpdateContact sets name and phone number on the contact with id and
	// reports whether such a contact exists.
	UpdateContact(ctx context.Context, id int64, name, phoneNumber string) (bool, error)

	// SeedContacts inserts contacts only if the store holds none, and reports
	// whether it did.
	SeedContacts(ctx context.Context, contacts []Contact) (bool, error)
}

// AlertStore is the append-only log of SOS alerts.
type AlertStore interface {
	// InsertAlert persists a and fills in its ID and Timestamp.
	InsertAlert(ctx context.Context, a *Alert) error

	// ListAlerts returns every alert, oldest first.
	ListAlerts(ctx context.Context) ([]Alert, error)
}

// Store is implemented by every backend.
type Store interface {
	ContactStore
	AlertStore
}

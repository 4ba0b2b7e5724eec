// Package memstore provides an in-memory implementation of sos.Store.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/linnemanlabs/vitallink/internal/sos"
)

// Store holds contacts and alerts in memory. Suitable for dev/testing.
type Store struct {
	mu          sync.RWMutex
	contacts    []sos.Contact // insertion order
	alerts      []sos.Alert
	nextContact int64
	nextAlert   int64
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{nextContact: 1, nextAlert: 1}
}

// ListContacts returns copies of the contacts by ascending priority.
func (s *Store) ListContacts(_ context.Context, limit int) ([]sos.Contact, error) {
	s.mu.RLock()
	out := slices.Clone(s.contacts)
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b sos.Contact) int { return cmp.Compare(a.Priority, b.Priority) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []sos.Contact{}
	}
	return out, nil
}

// UpdateContact sets name and phone number on the contact with id.
func (s *Store) UpdateContact(_ context.Context, id int64, name, phoneNumber string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.contacts {
		if s.contacts[i].ID == id {
			s.contacts[i].Name = name
			s.contacts[i].PhoneNumber = phoneNumber
			return true, nil
		}
	}
	return false, nil
}

// SeedContacts stores contacts if none exist. Contacts without an ID get the
// next free one.
func (s *Store) SeedContacts(_ context.Context, contacts []sos.Contact) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.contacts) > 0 {
		return false, nil
	}
	for _, c := range contacts {
		if c.ID == 0 {
			c.ID = s.nextContact
		}
		s.nextContact = max(s.nextContact, c.ID+1)
		s.contacts = append(s.contacts, c)
	}
	return true, nil
}

// InsertAlert appends a copy of a, assigning its ID and Timestamp.
func (s *Store) InsertAlert(_ context.Context, a *sos.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.nextAlert
	a.Timestamp = time.Now().UTC()
	s.nextAlert++

	cp := *a
	cp.AbnormalFields = slices.Clone(a.AbnormalFields)
	s.alerts = append(s.alerts, cp)
	return nil
}

// ListAlerts returns copies of every alert, oldest first.
func (s *Store) ListAlerts(_ context.Context) ([]sos.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]sos.Alert, len(s.alerts))
	for i, a := range s.alerts {
		a.AbnormalFields = slices.Clone(a.AbnormalFields)
		out[i] = a
	}
	return out, nil
}

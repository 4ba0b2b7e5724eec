// Package storetest checks that an sos.Store backend behaves like the others.
// Backend test files call Run with a constructor for an empty store.
package storetest

import (
	"context"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/vitallink/internal/sos"
)

// Run exercises every Store operation against stores built by newStore. Each
// subtest gets its own store, which must start empty.
func Run(t *testing.T, newStore func(t *testing.T) sos.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s sos.Store)
	}{
		{"ListEmpty", testListEmpty},
		{"SeedOnlyWhenEmpty", testSeedOnlyWhenEmpty},
		{"ListOrderAndLimit", testListOrderAndLimit},
		{"PriorityTies", testPriorityTies},
		{"UpdateContact", testUpdateContact},
		{"UpdateMissingContact", testUpdateMissingContact},
		{"InsertAndListAlerts", testInsertAndListAlerts},
		{"AlertNonFiniteReadings", testAlertNonFiniteReadings},
		{"ConcurrentInserts", testConcurrentInserts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func names(cs []sos.Contact) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name)
	}
	return out
}

func seed(t *testing.T, s sos.Store, contacts []sos.Contact) {
	t.Helper()
	ok, err := s.SeedContacts(context.Background(), contacts)
	if err != nil {
		t.Fatalf("SeedContacts: %v", err)
	}
	if !ok {
		t.Fatal("SeedContacts on empty store returned false")
	}
}

func testListEmpty(t *testing.T, s sos.Store) {
	got, err := s.ListContacts(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ListContacts = %#v, want empty non-nil slice", got)
	}

	alerts, err := s.ListAlerts(context.Background())
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("ListAlerts = %d alerts, want 0", len(alerts))
	}
}

func testSeedOnlyWhenEmpty(t *testing.T, s sos.Store) {
	ctx := context.Background()
	seed(t, s, sos.DefaultContacts())

	ok, err := s.SeedContacts(ctx, []sos.Contact{{ID: 9, Name: "Intruder", PhoneNumber: "+9", Priority: 0}})
	if err != nil {
		t.Fatalf("second SeedContacts: %v", err)
	}
	if ok {
		t.Error("second SeedContacts returned true, want false")
	}

	got, err := s.ListContacts(ctx, 0)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if !reflect.DeepEqual(got, sos.DefaultContacts()) {
		t.Errorf("contacts = %+v, want defaults", got)
	}
}

func testListOrderAndLimit(t *testing.T, s sos.Store) {
	ctx := context.Background()
	seed(t, s, []sos.Contact{
		{ID: 1, Name: "Neighbour", PhoneNumber: "+5", Priority: 5},
		{ID: 2, Name: "Mom", PhoneNumber: "+1", Priority: 1},
		{ID: 3, Name: "Friend", PhoneNumber: "+4", Priority: 4},
		{ID: 4, Name: "Doctor", PhoneNumber: "+3", Priority: 3},
		{ID: 5, Name: "Dad", PhoneNumber: "+2", Priority: 2},
	})

	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"Mom", "Dad", "Doctor", "Friend", "Neighbour"}},
		{-1, []string{"Mom", "Dad", "Doctor", "Friend", "Neighbour"}},
		{3, []string{"Mom", "Dad", "Doctor"}},
		{1, []string{"Mom"}},
		{10, []string{"Mom", "Dad", "Doctor", "Friend", "Neighbour"}},
	}
	for _, tt := range tests {
		got, err := s.ListContacts(ctx, tt.limit)
		if err != nil {
			t.Fatalf("ListContacts(%d): %v", tt.limit, err)
		}
		if n := names(got); !reflect.DeepEqual(n, tt.want) {
			t.Errorf("ListContacts(%d) = %q, want %q", tt.limit, n, tt.want)
		}
	}
}

func testPriorityTies(t *testing.T, s sos.Store) {
	seed(t, s, []sos.Contact{
		{ID: 1, Name: "A", PhoneNumber: "+1", Priority: 2},
		{ID: 2, Name: "B", PhoneNumber: "+2", Priority: 1},
		{ID: 3, Name: "C", PhoneNumber: "+3", Priority: 2},
		{ID: 4, Name: "D", PhoneNumber: "+4", Priority: 1},
	})

	got, err := s.ListContacts(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if n, want := names(got), []string{"B", "D", "A"}; !reflect.DeepEqual(n, want) {
		t.Errorf("ListContacts(3) = %q, want %q", n, want)
	}
}

func testUpdateContact(t *testing.T, s sos.Store) {
	ctx := context.Background()
	seed(t, s, sos.DefaultContacts())

	ok, err := s.UpdateContact(ctx, 2, "Father", "+1000000002")
	if err != nil {
		t.Fatalf("UpdateContact: %v", err)
	}
	if !ok {
		t.Fatal("UpdateContact(2) returned false, want true")
	}

	got, err := s.ListContacts(ctx, 0)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	want := sos.DefaultContacts()
	want[1].Name = "Father"
	want[1].PhoneNumber = "+1000000002"
	if !reflect.DeepEqual(got, want) {
		t.Errorf("contacts = %+v, want %+v", got, want)
	}
}

func testUpdateMissingContact(t *testing.T, s sos.Store) {
	ctx := context.Background()
	seed(t, s, sos.DefaultContacts())

	ok, err := s.UpdateContact(ctx, 99, "Ghost", "+0")
	if err != nil {
		t.Fatalf("UpdateContact: %v", err)
	}
	if ok {
		t.Error("UpdateContact(99) returned true, want false")
	}

	got, err := s.ListContacts(ctx, 0)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if !reflect.DeepEqual(got, sos.DefaultContacts()) {
		t.Errorf("contacts changed after missing update: %+v", got)
	}
}

func testInsertAndListAlerts(t *testing.T, s sos.Store) {
	ctx := context.Background()
	before := time.Now().Add(-time.Minute)

	first := &sos.Alert{
		Ref:            "01J000000000000000000000A1",
		HeartRate:      125,
		SpO2:           88,
		Temperature:    38.2,
		Location:       "12.9716, 77.5946",
		AbnormalFields: []string{"Heart Rate (125 bpm)", "SpO2 (88%)", "Temp (38.2°C)"},
		Reason:         "Abnormal value(s): Heart Rate (125 bpm), SpO2 (88%), Temp (38.2°C)",
		WhatsAppStatus: sos.DeliverySent,
		SMSStatus:      sos.DeliverySent,
	}
	second := &sos.Alert{
		Ref:            "01J000000000000000000000A2",
		HeartRate:      101,
		SpO2:           94,
		Temperature:    37.6,
		AbnormalFields: []string{"Heart Rate (101 bpm)", "SpO2 (94%)", "Temp (37.6°C)"},
		Reason:         "Abnormal value(s): Heart Rate (101 bpm), SpO2 (94%), Temp (37.6°C)",
		WhatsAppStatus: sos.DeliveryNoContacts,
		SMSStatus:      sos.DeliveryNoContacts,
	}

	for _, a := range []*sos.Alert{first, second} {
		if err := s.InsertAlert(ctx, a); err != nil {
			t.Fatalf("InsertAlert: %v", err)
		}
		if a.ID <= 0 {
			t.Errorf("InsertAlert left ID = %d", a.ID)
		}
		if a.Timestamp.Before(before) {
			t.Errorf("InsertAlert Timestamp = %v, want recent", a.Timestamp)
		}
	}
	if second.ID <= first.ID {
		t.Errorf("alert IDs not increasing: %d then %d", first.ID, second.ID)
	}

	got, err := s.ListAlerts(ctx)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListAlerts = %d alerts, want 2", len(got))
	}

	for i, want := range []*sos.Alert{first, second} {
		g := got[i]
		if g.ID != want.ID || g.Ref != want.Ref {
			t.Errorf("alert[%d] id/ref = %d/%q, want %d/%q", i, g.ID, g.Ref, want.ID, want.Ref)
		}
		if g.HeartRate != want.HeartRate || g.SpO2 != want.SpO2 || g.Temperature != want.Temperature {
			t.Errorf("alert[%d] readings = %v/%v/%v", i, g.HeartRate, g.SpO2, g.Temperature)
		}
		if g.Location != want.Location || g.Reason != want.Reason {
			t.Errorf("alert[%d] location/reason = %q/%q", i, g.Location, g.Reason)
		}
		if !reflect.DeepEqual(g.AbnormalFields, want.AbnormalFields) {
			t.Errorf("alert[%d] fields = %q, want %q", i, g.AbnormalFields, want.AbnormalFields)
		}
		if g.WhatsAppStatus != want.WhatsAppStatus || g.SMSStatus != want.SMSStatus {
			t.Errorf("alert[%d] statuses = %q/%q", i, g.WhatsAppStatus, g.SMSStatus)
		}
		if g.Timestamp.Sub(want.Timestamp).Abs() > time.Second {
			t.Errorf("alert[%d] timestamp = %v, want ~%v", i, g.Timestamp, want.Timestamp)
		}
	}
}

func testAlertNonFiniteReadings(t *testing.T, s sos.Store) {
	ctx := context.Background()
	a := &sos.Alert{
		Ref:            "01J000000000000000000000B1",
		HeartRate:      math.NaN(),
		SpO2:           80,
		Temperature:    math.Inf(1),
		AbnormalFields: []string{"SpO2 (80%)", "Temp (Infinity°C)"},
		Reason:         "Abnormal value(s): SpO2 (80%), Temp (Infinity°C)",
		WhatsAppStatus: sos.DeliverySent,
		SMSStatus:      sos.DeliverySent,
	}
	if err := s.InsertAlert(ctx, a); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	got, err := s.ListAlerts(ctx)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListAlerts = %d alerts, want 1", len(got))
	}
	if !math.IsNaN(got[0].HeartRate) {
		t.Errorf("HeartRate = %v, want NaN", got[0].HeartRate)
	}
	if !math.IsInf(got[0].Temperature, 1) {
		t.Errorf("Temperature = %v, want +Inf", got[0].Temperature)
	}
}

func testConcurrentInserts(t *testing.T, s sos.Store) {
	ctx := context.Background()
	seed(t, s, sos.DefaultContacts())
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- s.InsertAlert(ctx, &sos.Alert{
				HeartRate:      130,
				SpO2:           97,
				Temperature:    37,
				AbnormalFields: []string{"Heart Rate (130 bpm)"},
				Reason:         "Abnormal value(s): Heart Rate (130 bpm)",
				WhatsAppStatus: sos.DeliverySent,
				SMSStatus:      sos.DeliverySent,
			})
		}()
		go func() {
			defer wg.Done()
			_, err := s.ListContacts(ctx, 3)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent op: %v", err)
		}
	}

	got, err := s.ListAlerts(ctx)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(got) != n {
		t.Fatalf("ListAlerts = %d alerts, want %d", len(got), n)
	}
	seen := make(map[int64]bool, n)
	for _, a := range got {
		if seen[a.ID] {
			t.Errorf("duplicate alert id %d", a.ID)
		}
		seen[a.ID] = true
	}
}

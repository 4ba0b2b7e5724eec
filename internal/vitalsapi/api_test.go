package vitalsapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/vitallink/internal/notify/simulated"
	"github.com/linnemanlabs/vitallink/internal/sos"
	"github.com/linnemanlabs/vitallink/internal/sos/memstore"
	"github.com/linnemanlabs/vitallink/internal/vitals"
)

// mockService implements Service for testing.
type mockService struct {
	mu         sync.Mutex
	readings   []sos.Reading
	updates    []updateCall
	contacts   []sos.Contact
	result     *sos.Result
	analyzeErr error
	listErr    error
	updateErr  error
}

type updateCall struct {
	id          int64
	name, phone string
}

func (m *mockService) Analyze(_ context.Context, rd sos.Reading) (*sos.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, rd)
	if m.analyzeErr != nil {
		return nil, m.analyzeErr
	}
	if m.result != nil {
		return m.result, nil
	}
	return &sos.Result{Status: sos.StatusOK, Message: sos.MessageOK}, nil
}

func (m *mockService) Contacts(_ context.Context) ([]sos.Contact, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.contacts, nil
}

func (m *mockService) UpdateContact(_ context.Context, id int64, name, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, updateCall{id, name, phone})
	return m.updateErr
}

func newTestRouter(t *testing.T, svc Service) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	New(nil, svc, nil).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, &mockService{}, nil)
	if api.logger == nil {
		t.Fatal("New(nil, svc) left logger nil; expected Nop logger")
	}
	if !reflect.DeepEqual(api.allowedOrigins, []string{"*"}) {
		t.Errorf("allowedOrigins = %q, want [*]", api.allowedOrigins)
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(log.Nop(), nil, nil)
}

// Routing

func TestRegisterRoutes(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{contacts: sos.DefaultContacts()})

	tests := []struct {
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{http.MethodGet, "/api/contacts", "", http.StatusOK},
		{http.MethodGet, "/api/emergency-contacts", "", http.StatusOK},
		{http.MethodPost, "/api/contacts", `{"id":1,"name":"Mom","phoneNumber":"+1"}`, http.StatusOK},
		{http.MethodPut, "/api/contacts", `{"id":1,"name":"Mom","phoneNumber":"+1"}`, http.StatusOK},
		{http.MethodPost, "/api/emergency-contacts", `{"id":1,"name":"Mom","phoneNumber":"+1"}`, http.StatusOK},
		{http.MethodPut, "/api/emergency-contacts", `{"id":1,"name":"Mom","phoneNumber":"+1"}`, http.StatusOK},
		{http.MethodPost, "/api/analyze", `{"heartRate":75,"spo2":98,"temperature":36.9}`, http.StatusOK},
		{http.MethodPost, "/api/vitals/analyze", `{"heartRate":75,"spo2":98,"temperature":36.9}`, http.StatusOK},
		{http.MethodGet, "/api/vitals/fetch-mock", "", http.StatusOK},
		{http.MethodGet, "/api/analyze", "", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/contacts", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/vitals/fetch-mock", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/alerts", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()
			rec := do(t, r, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{})

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", http.NoBody)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code >= 300 {
		t.Errorf("preflight status = %d, want 2xx", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/contacts", http.NoBody)
	req.Header.Set("Origin", "http://dashboard.local")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("GET Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	New(nil, &mockService{}, []string{"https://vitals.example.com"}).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/contacts", http.NoBody)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q for disallowed origin, want empty", got)
	}
}

// Contacts

func TestListContacts(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{contacts: sos.DefaultContacts()})
	rec := do(t, r, http.MethodGet, "/api/contacts", "")

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	got := decode[[]map[string]any](t, rec)
	if len(got) != 3 {
		t.Fatalf("contacts = %d, want 3", len(got))
	}
	want := map[string]any{"id": 1.0, "name": "Mom", "phoneNumber": "+1234567890", "priority": 1.0}
	if !reflect.DeepEqual(got[0], want) {
		t.Errorf("contact[0] = %v, want %v", got[0], want)
	}
}

func TestListContacts_Empty(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{contacts: []sos.Contact{}})
	rec := do(t, r, http.MethodGet, "/api/contacts", "")

	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestListContacts_StoreError(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{listErr: errors.New("list contacts: no such table: emergency_contacts")})
	rec := do(t, r, http.MethodGet, "/api/contacts", "")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	got := decode[map[string]string](t, rec)
	if got["error"] != "list contacts: no such table: emergency_contacts" {
		t.Errorf("error = %q", got["error"])
	}
}

func TestUpdateContact_IDForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		wantCall *updateCall
	}{
		{"number", `{"id":2,"name":"Dad","phoneNumber":"+1987654321"}`, &updateCall{2, "Dad", "+1987654321"}},
		{"numeric string", `{"id":"2","name":"Dad","phoneNumber":"+1"}`, &updateCall{2, "Dad", "+1"}},
		{"padded string", `{"id":" 3 ","name":"Doc","phoneNumber":"+3"}`, &updateCall{3, "Doc", "+3"}},
		{"integral float", `{"id":1.0,"name":"Mom","phoneNumber":"+1"}`, &updateCall{1, "Mom", "+1"}},
		{"missing name", `{"id":1,"phoneNumber":"+1"}`, &updateCall{1, "", "+1"}},
		{"word id", `{"id":"abc","name":"X","phoneNumber":"+0"}`, nil},
		{"fractional id", `{"id":1.5,"name":"X","phoneNumber":"+0"}`, nil},
		{"missing id", `{"name":"X","phoneNumber":"+0"}`, nil},
		{"empty body", ``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockService{}
			rec := do(t, newTestRouter(t, svc), http.MethodPost, "/api/contacts", tt.body)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
			}
			got := decode[map[string]string](t, rec)
			if got["message"] != "Contact updated" {
				t.Errorf("message = %q, want Contact updated", got["message"])
			}

			switch {
			case tt.wantCall == nil && len(svc.updates) != 0:
				t.Errorf("service called with %+v, want no call", svc.updates)
			case tt.wantCall != nil && (len(svc.updates) != 1 || svc.updates[0] != *tt.wantCall):
				t.Errorf("service calls = %+v, want [%+v]", svc.updates, *tt.wantCall)
			}
		})
	}
}

func TestUpdateContact_MalformedJSON(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	rec := do(t, newTestRouter(t, svc), http.MethodPost, "/api/contacts", `{"id":1,`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(svc.updates) != 0 {
		t.Error("service called for malformed body")
	}
}

func TestUpdateContact_StoreError(t *testing.T) {
	t.Parallel()

	svc := &mockService{updateErr: errors.New("update contact 1: attempt to write a readonly database")}
	rec := do(t, newTestRouter(t, svc), http.MethodPut, "/api/contacts", `{"id":1,"name":"A","phoneNumber":"B"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decode[map[string]string](t, rec); got["error"] != svc.updateErr.Error() {
		t.Errorf("error = %q, want %q", got["error"], svc.updateErr.Error())
	}
}

// Analyze

func TestAnalyze_ParsesReadings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		want     [3]float64
		wantNaN  [3]bool
		location string
	}{
		{
			name: "numbers",
			body: `{"heartRate":125,"spo2":88,"temperature":38.2,"location":"12.97, 77.59"}`,
			want: [3]float64{125, 88, 38.2}, location: "12.97, 77.59",
		},
		{
			name: "strings from form inputs",
			body: `{"heartRate":"75","spo2":"98","temperature":"36.9","location":"Home"}`,
			want: [3]float64{75, 98, 36.9}, location: "Home",
		},
		{
			name: "strings with units",
			body: `{"heartRate":"75 bpm","spo2":"98%","temperature":"36.9C"}`,
			want: [3]float64{75, 98, 36.9},
		},
		{
			name:    "missing fields",
			body:    `{"spo2":97}`,
			want:    [3]float64{0, 97, 0},
			wantNaN: [3]bool{true, false, true},
		},
		{
			name:    "empty strings and null",
			body:    `{"heartRate":"","spo2":null,"temperature":"abc"}`,
			wantNaN: [3]bool{true, true, true},
		},
		{
			name:    "empty body",
			body:    ``,
			wantNaN: [3]bool{true, true, true},
		},
		{
			name:     "object location",
			body:     `{"heartRate":80,"spo2":97,"temperature":37,"location":{"lat":1,"lng":2}}`,
			want:     [3]float64{80, 97, 37},
			location: `{"lat":1,"lng":2}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockService{}
			rec := do(t, newTestRouter(t, svc), http.MethodPost, "/api/analyze", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
			}
			if len(svc.readings) != 1 {
				t.Fatalf("Analyze calls = %d, want 1", len(svc.readings))
			}

			rd := svc.readings[0]
			got := [3]float64{rd.HeartRate, rd.SpO2, rd.Temperature}
			for i := range got {
				if tt.wantNaN[i] {
					if !math.IsNaN(got[i]) {
						t.Errorf("reading[%d] = %v, want NaN", i, got[i])
					}
					continue
				}
				if got[i] != tt.want[i] {
					t.Errorf("reading[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
			if rd.Location != tt.location {
				t.Errorf("location = %q, want %q", rd.Location, tt.location)
			}
		})
	}
}

func TestAnalyze_MalformedJSON(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	rec := do(t, newTestRouter(t, svc), http.MethodPost, "/api/analyze", `{"heartRate":`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if got := decode[map[string]string](t, rec); got["error"] == "" {
		t.Error("expected error message in body")
	}
	if len(svc.readings) != 0 {
		t.Error("service called for malformed body")
	}
}

func TestAnalyze_ServiceError(t *testing.T) {
	t.Parallel()

	svc := &mockService{analyzeErr: errors.New("insert alert: disk I/O error")}
	rec := do(t, newTestRouter(t, svc), http.MethodPost, "/api/analyze", `{"heartRate":130}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decode[map[string]string](t, rec); got["error"] != "insert alert: disk I/O error" {
		t.Errorf("error = %q", got["error"])
	}
}

func TestAnalyze_OKResponseOmitsDetails(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestRouter(t, &mockService{}), http.MethodPost, "/api/analyze", `{"heartRate":75,"spo2":98,"temperature":36.9}`)

	got := decode[map[string]any](t, rec)
	want := map[string]any{"status": "OK", "sosGenerated": false, "message": "User is OK. All vitals normal."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("body = %v, want %v", got, want)
	}
}

// Mock reading

func TestFetchMock(t *testing.T) {
	t.Parallel()

	api := New(nil, &mockService{}, nil)
	api.mock = func() vitals.Mock { return vitals.Mock{HeartRate: 72, SpO2: 98, Temperature: "36.8"} }
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	rec := do(t, r, http.MethodGet, "/api/vitals/fetch-mock", "")
	if body := strings.TrimSpace(rec.Body.String()); body != `{"heartRate":72,"spo2":98,"temperature":"36.8"}` {
		t.Errorf("body = %s", body)
	}
}

func TestFetchMock_DefaultSource(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{})
	for range 50 {
		got := decode[vitals.Mock](t, do(t, r, http.MethodGet, "/api/vitals/fetch-mock", ""))
		if got.HeartRate < 65 || got.HeartRate > 90 || got.SpO2 < 96 || got.SpO2 > 100 {
			t.Fatalf("mock reading out of range: %+v", got)
		}
	}
}

// End to end with the real service, in-memory store and simulated notifier.

func newE2E(t *testing.T, seed bool) (http.Handler, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	svc := sos.NewService(store, simulated.New(log.Nop()), log.Nop())
	if seed {
		if _, err := svc.Seed(context.Background(), sos.DefaultContacts()); err != nil {
			t.Fatalf("Seed: %v", err)
		}
	}
	r := chi.NewRouter()
	New(log.Nop(), svc, nil).RegisterRoutes(r)
	return r, store
}

func TestE2E_HealthyReading(t *testing.T) {
	t.Parallel()

	h, store := newE2E(t, true)
	rec := do(t, h, http.MethodPost, "/api/analyze", `{"heartRate":"75","spo2":"98","temperature":"36.9","location":"Home"}`)

	got := decode[map[string]any](t, rec)
	if got["status"] != "OK" || got["sosGenerated"] != false {
		t.Errorf("body = %v, want OK", got)
	}
	if alerts, _ := store.ListAlerts(context.Background()); len(alerts) != 0 {
		t.Errorf("alerts = %d, want 0", len(alerts))
	}
}

func TestE2E_CriticalReading(t *testing.T) {
	t.Parallel()

	h, store := newE2E(t, true)
	rec := do(t, h, http.MethodPost, "/api/analyze", `{"heartRate":125,"spo2":88,"temperature":38.2,"location":"12.97, 77.59"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var got sos.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := sos.Result{
		Status:       sos.StatusSOS,
		SOSGenerated: true,
		Message:      "SOS Generated. Vitals Critical.",
		Details: &sos.Details{
			AbnormalFields: []string{"Heart Rate (125 bpm)", "SpO2 (88%)", "Temp (38.2°C)"},
			SentTo:         []string{"Mom", "Dad", "Doctor"},
			WhatsAppStatus: "Sent (Simulated)",
			SMSStatus:      "Sent (Simulated)",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("result = %+v / %+v, want %+v / %+v", got, got.Details, want, want.Details)
	}

	alerts, _ := store.ListAlerts(context.Background())
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Reason != "Abnormal value(s): Heart Rate (125 bpm), SpO2 (88%), Temp (38.2°C)" {
		t.Errorf("reason = %q", alerts[0].Reason)
	}
}

func TestE2E_NoContacts(t *testing.T) {
	t.Parallel()

	h, store := newE2E(t, false)
	rec := do(t, h, http.MethodPost, "/api/vitals/analyze", `{"heartRate":101,"spo2":94,"temperature":37.6}`)

	if !strings.Contains(rec.Body.String(), `"sentTo":[]`) {
		t.Errorf("body = %s, want sentTo []", rec.Body.String())
	}
	got := decode[sos.Result](t, rec)
	if got.Details.WhatsAppStatus != "Failed (No Contacts)" || got.Details.SMSStatus != "Failed (No Contacts)" {
		t.Errorf("statuses = %q/%q", got.Details.WhatsAppStatus, got.Details.SMSStatus)
	}
	if alerts, _ := store.ListAlerts(context.Background()); len(alerts) != 1 {
		t.Errorf("alerts = %d, want 1", len(alerts))
	}
}

func TestE2E_UpdateThenList(t *testing.T) {
	t.Parallel()

	h, _ := newE2E(t, true)

	rec := do(t, h, http.MethodPost, "/api/contacts", `{"id":"2","name":"Father","phoneNumber":"+15550002"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	// unknown id is absorbed
	rec = do(t, h, http.MethodPost, "/api/contacts", `{"id":99,"name":"Ghost","phoneNumber":"+0"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown id status = %d", rec.Code)
	}

	got := decode[[]sos.Contact](t, do(t, h, http.MethodGet, "/api/emergency-contacts", ""))
	want := sos.DefaultContacts()
	want[1].Name = "Father"
	want[1].PhoneNumber = "+15550002"
	if !reflect.DeepEqual(got, want) {
		t.Errorf("contacts = %+v, want %+v", got, want)
	}
}

package sos

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/vitallink/internal/vitals"
)

var tracer = otel.Tracer("github.com/linnemanlabs/vitallink/internal/sos")

// DefaultMaxContacts is how many contacts an SOS reaches unless configured.
const DefaultMaxContacts = 3

// Analysis outcomes, used as span attribute and metric label.
const (
	OutcomeOK         = "ok"
	OutcomeSOS        = "sos"
	OutcomeNoContacts = "sos_no_contacts"
	OutcomeError      = "error"
)

// Contact update results.
const (
	UpdateApplied  = "updated"
	UpdateNotFound = "not_found"
	UpdateError    = "error"
)

// Service is the business boundary for vitals analysis and contact management.
type Service struct {
	store       Store
	notifier    Notifier
	logger      log.Logger
	hooks       Hooks
	ranges      vitals.Ranges
	maxContacts int
}

// Option configures a Service.
type Option func(*Service)

// WithMaxContacts caps how many contacts an SOS notifies. n <= 0 notifies all.
func WithMaxContacts(n int) Option {
	return func(s *Service) { s.maxContacts = n }
}

// WithHooks installs observation callbacks, typically Metrics.Hooks().
func WithHooks(h Hooks) Option {
	return func(s *Service) { s.hooks = h }
}

// WithRanges replaces the reference ranges used to judge readings.
func WithRanges(r vitals.Ranges) Option {
	return func(s *Service) { s.ranges = r }
}

// NewService creates a new sos service.
func NewService(store Store, notifier Notifier, logger log.Logger, opts ...Option) *Service {
	if store == nil {
		panic(xerrors.New("sos store is required"))
	}
	if notifier == nil {
		panic(xerrors.New("notifier is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}

	s := &Service{
		store:       store,
		notifier:    notifier,
		logger:      logger,
		ranges:      vitals.DefaultRanges,
		maxContacts: DefaultMaxContacts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze evaluates a reading. Normal readings return an OK result and
// touch no store. Abnormal readings notify the highest priority contacts,
// persist one Alert and return an SOS result. Errors come only from the
// store; notifications already sent are not undone.
func (s *Service) Analyze(ctx context.Context, rd Reading) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "sos.analyze", trace.WithAttributes(
		attribute.Float64("vitallink.heart_rate", rd.HeartRate),
		attribute.Float64("vitallink.spo2", rd.SpO2),
		attribute.Float64("vitallink.temperature", rd.Temperature),
	))
	defer span.End()

	abnormal := s.ranges.Evaluate(rd.HeartRate, rd.SpO2, rd.Temperature)
	span.SetAttributes(attribute.Int("vitallink.abnormal_count", len(abnormal)))

	if len(abnormal) == 0 {
		span.SetAttributes(attribute.String("vitallink.outcome", OutcomeOK))
		s.hooks.analyzed(OutcomeOK, time.Since(start))
		return &Result{Status: StatusOK, Message: MessageOK}, nil
	}

	ref := ulid.Make().String()
	reason := Reason(abnormal)
	span.SetAttributes(attribute.String("vitallink.alert_ref", ref))
	L := s.logger.With("alert_ref", ref)

	contacts, err := s.store.ListContacts(ctx, s.maxContacts)
	if err != nil {
		s.failed(span, start, err)
		L.Error(ctx, err, "failed to read contacts for sos")
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	outcome := OutcomeNoContacts
	status := DeliveryNoContacts
	sentTo := make([]string, 0, len(contacts))
	if len(contacts) > 0 {
		ac := AlertContext{Ref: ref, Location: rd.Location, Reason: reason}
		for _, c := range contacts {
			ok := s.notifier.Notify(ctx, c, ac)
			s.hooks.notified(ok)
			if !ok {
				L.Warn(ctx, "notification not delivered", "contact_id", c.ID, "priority", c.Priority)
			}
			sentTo = append(sentTo, c.Name)
		}
		outcome = OutcomeSOS
		status = DeliverySent
	}
	span.SetAttributes(attribute.Int("vitallink.contacts_notified", len(contacts)))

	a := &Alert{
		Ref:            ref,
		HeartRate:      rd.HeartRate,
		SpO2:           rd.SpO2,
		Temperature:    rd.Temperature,
		Location:       rd.Location,
		AbnormalFields: abnormal,
		Reason:         reason,
		WhatsAppStatus: status,
		SMSStatus:      status,
	}
	err = s.store.InsertAlert(ctx, a)
	s.hooks.persisted(err)
	if err != nil {
		s.failed(span, start, err)
		L.Error(ctx, err, "failed to persist alert", "contacts", len(contacts))
		return nil, fmt.Errorf("insert alert: %w", err)
	}

	span.SetAttributes(attribute.String("vitallink.outcome", outcome))
	s.hooks.analyzed(outcome, time.Since(start))

	L.Warn(ctx, "sos generated",
		"alert_id", a.ID,
		"abnormal", abnormal,
		"contacts", len(contacts),
		"status", status,
	)

	return &Result{
		Status:       StatusSOS,
		SOSGenerated: true,
		Message:      MessageSOS,
		Details: &Details{
			AbnormalFields: abnormal,
			SentTo:         sentTo,
			WhatsAppStatus: status,
			SMSStatus:      status,
		},
	}, nil
}

// Contacts returns every contact by ascending priority.
func (s *Service) Contacts(ctx context.Context) ([]Contact, error) {
	contacts, err := s.store.ListContacts(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

// UpdateContact changes the name and phone number of a contact. An unknown id
// is logged and counted but is not an error.
func (s *Service) UpdateContact(ctx context.Context, id int64, name, phoneNumber string) error {
	ok, err := s.store.UpdateContact(ctx, id, name, phoneNumber)
	if err != nil {
		s.hooks.contactUpdated(UpdateError)
		return fmt.Errorf("update contact %d: %w", id, err)
	}
	if !ok {
		s.hooks.contactUpdated(UpdateNotFound)
		s.logger.Warn(ctx, "contact update matched no contact", "contact_id", id)
		return nil
	}
	s.hooks.contactUpdated(UpdateApplied)
	s.logger.Info(ctx, "contact updated", "contact_id", id)
	return nil
}

// Seed inserts contacts if the store has none.
func (s *Service) Seed(ctx context.Context, contacts []Contact) (bool, error) {
	seeded, err := s.store.SeedContacts(ctx, contacts)
	if err != nil {
		return false, fmt.Errorf("seed contacts: %w", err)
	}
	if seeded {
		s.logger.Info(ctx, "seeded default contacts", "count", len(contacts))
	}
	return seeded, nil
}

func (s *Service) failed(span trace.Span, start time.Time, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("vitallink.outcome", OutcomeError))
	s.hooks.analyzed(OutcomeError, time.Since(start))
}

// Package pgstore provides a PostgreSQL implementation of sos.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/vitallink/internal/sos"
)

var tracer = otel.Tracer("github.com/linnemanlabs/vitallink/internal/sos/pgstore")

//go:embed schema.sql
var schema string

// Store persists contacts and alerts in PostgreSQL. The pool is owned by the
// caller.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// ListContacts returns contacts by ascending priority, then id.
func (s *Store) ListContacts(ctx context.Context, limit int) ([]sos.Contact, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListContacts", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	// LIMIT NULL is no limit
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, phone_number, priority
		FROM emergency_contacts
		ORDER BY priority ASC, id ASC
		LIMIT $1`, lim)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query contacts: %w", err)
	}

	contacts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (sos.Contact, error) {
		var c sos.Contact
		err := row.Scan(&c.ID, &c.Name, &c.PhoneNumber, &c.Priority)
		return c, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scan contacts: %w", err)
	}
	if contacts == nil {
		contacts = []sos.Contact{}
	}

	span.SetAttributes(attribute.Int("db.response.returned_rows", len(contacts)))
	return contacts, nil
}

// UpdateContact sets name and phone number on the contact with id.
func (s *Store) UpdateContact(ctx context.Context, id int64, name, phoneNumber string) (bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.UpdateContact", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE emergency_contacts SET name = $1, phone_number = $2 WHERE id = $3`,
		name, phoneNumber, id,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("update contact: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SeedContacts inserts contacts if the table is empty. The table is locked
// for the check so two instances starting together seed once.
func (s *Store) SeedContacts(ctx context.Context, contacts []sos.Contact) (bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.SeedContacts", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	seeded, err := s.seed(ctx, contacts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	span.SetAttributes(attribute.Bool("vitallink.seeded", seeded))
	return seeded, nil
}

func (s *Store) seed(ctx context.Context, contacts []sos.Contact) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if _, err := tx.Exec(ctx, `LOCK TABLE emergency_contacts IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return false, fmt.Errorf("lock contacts: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM emergency_contacts)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("check contacts: %w", err)
	}
	if exists {
		return false, nil
	}

	batch := &pgx.Batch{}
	for _, c := range contacts {
		var id *int64
		if c.ID != 0 {
			id = &c.ID
		}
		batch.Queue(`
			INSERT INTO emergency_contacts (id, name, phone_number, priority)
			VALUES (COALESCE($1, nextval(pg_get_serial_sequence('emergency_contacts', 'id'))), $2, $3, $4)`,
			id, c.Name, c.PhoneNumber, c.Priority,
		)
	}
	// explicit ids do not advance the sequence
	batch.Queue(`
		SELECT setval(pg_get_serial_sequence('emergency_contacts', 'id'),
			(SELECT COALESCE(MAX(id), 0) + 1 FROM emergency_contacts), false)`)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, fmt.Errorf("insert contacts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// InsertAlert appends a and fills in its ID and Timestamp.
func (s *Store) InsertAlert(ctx context.Context, a *sos.Alert) error {
	ctx, span := tracer.Start(ctx, "pgstore.InsertAlert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
		attribute.String("vitallink.alert_ref", a.Ref),
	))
	defer span.End()

	fields, err := json.Marshal(a.AbnormalFields)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("marshal abnormal fields: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO alerts (ref, heart_rate, spo2, temperature, location,
			abnormal_fields, reason, whatsapp_status, sms_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		a.Ref, a.HeartRate, a.SpO2, a.Temperature, a.Location,
		fields, a.Reason, a.WhatsAppStatus, a.SMSStatus,
	).Scan(&a.ID, &a.Timestamp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns every alert, oldest first.
func (s *Store) ListAlerts(ctx context.Context) ([]sos.Alert, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListAlerts", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx, `
		SELECT id, ref, created_at, heart_rate, spo2, temperature, location,
			abnormal_fields, reason, whatsapp_status, sms_status
		FROM alerts
		ORDER BY id ASC`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query alerts: %w", err)
	}

	alerts, err := pgx.CollectRows(rows, scanAlert)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scan alerts: %w", err)
	}
	return alerts, nil
}

func scanAlert(row pgx.CollectableRow) (sos.Alert, error) {
	var (
		a      sos.Alert
		fields []byte
	)
	if err := row.Scan(&a.ID, &a.Ref, &a.Timestamp, &a.HeartRate, &a.SpO2, &a.Temperature,
		&a.Location, &fields, &a.Reason, &a.WhatsAppStatus, &a.SMSStatus); err != nil {
		return a, err
	}
	if err := json.Unmarshal(fields, &a.AbnormalFields); err != nil {
		return a, fmt.Errorf("alert %d abnormal fields: %w", a.ID, err)
	}
	return a, nil
}

// Package sqlitestore provides a SQLite implementation of sos.Store for
// single-node deployments.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	_ "github.com/mattn/go-sqlite3"

	"github.com/linnemanlabs/vitallink/internal/sos"
)

var tracer = otel.Tracer("github.com/linnemanlabs/vitallink/internal/sos/sqlitestore")

// Store persists contacts and alerts in a SQLite file.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens or creates a SQLite database at the given path.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	// WAL for concurrent readers, immediate transactions so the seed check
	// and insert cannot interleave with another writer.
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_loc=auto&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// ListContacts returns contacts by ascending priority, then id.
func (s *Store) ListContacts(ctx context.Context, limit int) ([]sos.Contact, error) {
	ctx, span := startSpan(ctx, "sqlitestore.ListContacts", "SELECT")
	defer span.End()

	query := `
		SELECT id, COALESCE(name, ''), COALESCE(phoneNumber, ''), COALESCE(priority, 0)
		FROM emergency_contacts
		ORDER BY priority ASC, id ASC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.conn.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = s.conn.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("query contacts: %w", err))
	}
	defer rows.Close()

	contacts := []sos.Contact{}
	for rows.Next() {
		var c sos.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.PhoneNumber, &c.Priority); err != nil {
			return nil, fail(span, fmt.Errorf("scan contact: %w", err))
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.Int("db.response.returned_rows", len(contacts)))
	return contacts, nil
}

// UpdateContact sets name and phone number on the contact with id.
func (s *Store) UpdateContact(ctx context.Context, id int64, name, phoneNumber string) (bool, error) {
	ctx, span := startSpan(ctx, "sqlitestore.UpdateContact", "UPDATE")
	defer span.End()

	res, err := s.conn.ExecContext(ctx,
		`UPDATE emergency_contacts SET name = ?, phoneNumber = ? WHERE id = ?`,
		name, phoneNumber, id,
	)
	if err != nil {
		return false, fail(span, fmt.Errorf("update contact: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fail(span, err)
	}
	return n > 0, nil
}

// SeedContacts inserts contacts in one transaction if the table is empty.
func (s *Store) SeedContacts(ctx context.Context, contacts []sos.Contact) (bool, error) {
	ctx, span := startSpan(ctx, "sqlitestore.SeedContacts", "INSERT")
	defer span.End()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM emergency_contacts`).Scan(&count); err != nil {
		return false, fail(span, fmt.Errorf("count contacts: %w", err))
	}
	if count > 0 {
		return false, nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO emergency_contacts (id, name, phoneNumber, priority) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return false, fail(span, fmt.Errorf("prepare insert: %w", err))
	}
	defer stmt.Close()

	for _, c := range contacts {
		id := sql.NullInt64{Int64: c.ID, Valid: c.ID != 0}
		if _, err := stmt.ExecContext(ctx, id, c.Name, c.PhoneNumber, c.Priority); err != nil {
			return false, fail(span, fmt.Errorf("insert contact %q: %w", c.Name, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fail(span, fmt.Errorf("commit: %w", err))
	}
	return true, nil
}

// InsertAlert appends a and fills in its ID and Timestamp.
func (s *Store) InsertAlert(ctx context.Context, a *sos.Alert) error {
	ctx, span := startSpan(ctx, "sqlitestore.InsertAlert", "INSERT")
	defer span.End()

	fields, err := json.Marshal(a.AbnormalFields)
	if err != nil {
		return fail(span, fmt.Errorf("marshal abnormal fields: %w", err))
	}

	now := time.Now().UTC()
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO alerts (ref, timestamp, heartRate, spo2, temperature, location,
			abnormalFields, reason, whatsappStatus, smsStatus)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Ref, now,
		nullReal(a.HeartRate), nullReal(a.SpO2), nullReal(a.Temperature),
		a.Location, string(fields), a.Reason, a.WhatsAppStatus, a.SMSStatus,
	)
	if err != nil {
		return fail(span, fmt.Errorf("insert alert: %w", err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fail(span, err)
	}
	a.ID = id
	a.Timestamp = now
	return nil
}

// ListAlerts returns every alert, oldest first.
func (s *Store) ListAlerts(ctx context.Context) ([]sos.Alert, error) {
	ctx, span := startSpan(ctx, "sqlitestore.ListAlerts", "SELECT")
	defer span.End()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, ref, timestamp, heartRate, spo2, temperature, COALESCE(location, ''),
			COALESCE(abnormalFields, '[]'), COALESCE(reason, ''),
			COALESCE(whatsappStatus, ''), COALESCE(smsStatus, '')
		FROM alerts
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query alerts: %w", err))
	}
	defer rows.Close()

	var alerts []sos.Alert
	for rows.Next() {
		var (
			a              sos.Alert
			ts             sql.NullTime
			hr, spo2, temp sql.NullFloat64
			fields         string
		)
		if err := rows.Scan(&a.ID, &a.Ref, &ts, &hr, &spo2, &temp, &a.Location,
			&fields, &a.Reason, &a.WhatsAppStatus, &a.SMSStatus); err != nil {
			return nil, fail(span, fmt.Errorf("scan alert: %w", err))
		}
		a.Timestamp = ts.Time
		a.HeartRate = fromReal(hr)
		a.SpO2 = fromReal(spo2)
		a.Temperature = fromReal(temp)
		if err := json.Unmarshal([]byte(fields), &a.AbnormalFields); err != nil {
			return nil, fail(span, fmt.Errorf("alert %d abnormal fields: %w", a.ID, err))
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, err)
	}
	return alerts, nil
}

// nullReal stores NaN as NULL; fromReal reads NULL back as NaN. SQLite
// REAL holds ±Inf, so infinities are stored as they are.
func nullReal(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: !math.IsNaN(f)}
}

func fromReal(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

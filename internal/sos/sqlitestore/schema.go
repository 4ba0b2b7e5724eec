package sqlitestore

import (
	"context"
	"fmt"
)

// Column names follow the table layout earlier VitalLink releases wrote, so
// an existing database file can be opened in place.
const schema = `
	CREATE TABLE IF NOT EXISTS emergency_contacts (
		id INTEGER PRIMARY KEY,
		name TEXT,
		phoneNumber TEXT,
		priority INTEGER
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		heartRate REAL,
		spo2 REAL,
		temperature REAL,
		location TEXT,
		abnormalFields TEXT,
		reason TEXT,
		whatsappStatus TEXT,
		smsStatus TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_emergency_contacts_priority ON emergency_contacts(priority, id);
`

// initSchema creates the tables and adds columns missing from older files.
func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return err
	}

	has, err := s.hasColumn(ctx, "alerts", "ref")
	if err != nil {
		return err
	}
	if !has {
		if _, err := s.conn.ExecContext(ctx, `ALTER TABLE alerts ADD COLUMN ref TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("add alerts.ref: %w", err)
		}
	}
	return nil
}

func (s *Store) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

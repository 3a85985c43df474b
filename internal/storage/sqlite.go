package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS price_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		route TEXT NOT NULL,
		departure_date TEXT NOT NULL,
		best_price NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		captured_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS price_alert_leads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		departure_date TEXT NOT NULL,
		last_seen_price NUMERIC,
		currency TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_price_snapshots_route_date
		ON price_snapshots(route, departure_date)`,
	`CREATE INDEX IF NOT EXISTS idx_price_snapshots_captured_at
		ON price_snapshots(captured_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_price_alert_leads_email_route_date
		ON price_alert_leads(email, origin, destination, departure_date)`,
}

// SQLiteStorage is the file-backed storage implementation.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the SQLite database at path and
// runs migrations.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL gives better concurrency characteristics for a file DB.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=3000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	for _, q := range sqliteMigrations {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Health() error {
	return s.db.Ping()
}

func (s *SQLiteStorage) UpsertLead(ctx context.Context, lead Lead) error {
	lead = normalizeLead(lead)

	var price interface{}
	if lead.LastSeenPrice != nil {
		price = lead.LastSeenPrice.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_alert_leads
			(email, origin, destination, departure_date, last_seen_price, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email, origin, destination, departure_date)
		DO UPDATE SET
			last_seen_price = excluded.last_seen_price,
			currency = excluded.currency`,
		lead.Email, lead.Origin, lead.Destination, lead.DepartureDate,
		price, lead.Currency, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert lead: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListLeads(ctx context.Context) ([]Lead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, origin, destination, departure_date, last_seen_price, currency, created_at
		FROM price_alert_leads
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	return scanLeads(rows)
}

func (s *SQLiteStorage) UpdateLeadLastSeen(ctx context.Context, id int64, price decimal.Decimal, currency string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE price_alert_leads
		SET last_seen_price = ?, currency = ?
		WHERE id = ?`,
		price.String(), currency, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update lead %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStorage) InsertSnapshot(ctx context.Context, snap PriceSnapshot) error {
	snap = normalizeSnapshot(snap)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_snapshots
			(origin, destination, route, departure_date, best_price, currency, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.Origin, snap.Destination, snap.Route, snap.DepartureDate,
		snap.BestPrice.String(), snap.Currency, snap.CapturedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CountSnapshots(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_snapshots`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) RecentSnapshots(ctx context.Context, limit int) ([]PriceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, origin, destination, route, departure_date, best_price, currency, captured_at
		FROM price_snapshots
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// scanLeads converts lead rows, tolerating NULL price/currency.
func scanLeads(rows *sql.Rows) ([]Lead, error) {
	var leads []Lead
	for rows.Next() {
		var (
			lead      Lead
			price     sql.NullString
			currency  sql.NullString
			createdAt string
		)
		if err := rows.Scan(
			&lead.ID, &lead.Email, &lead.Origin, &lead.Destination,
			&lead.DepartureDate, &price, &currency, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}

		if price.Valid {
			d, err := decimal.NewFromString(price.String)
			if err != nil {
				return nil, fmt.Errorf("invalid stored price %q: %w", price.String, err)
			}
			lead.LastSeenPrice = &d
		}
		if currency.Valid {
			c := currency.String
			lead.Currency = &c
		}
		lead.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func scanSnapshots(rows *sql.Rows) ([]PriceSnapshot, error) {
	var snaps []PriceSnapshot
	for rows.Next() {
		var (
			snap       PriceSnapshot
			price      string
			capturedAt string
		)
		if err := rows.Scan(
			&snap.ID, &snap.Origin, &snap.Destination, &snap.Route,
			&snap.DepartureDate, &price, &snap.Currency, &capturedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid stored price %q: %w", price, err)
		}
		snap.BestPrice = d
		snap.CapturedAt, _ = time.Parse(time.RFC3339, capturedAt)

		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	SSLMode  string
}

func (c PostgresConfig) connString() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode)
}

func (c PostgresConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	return nil
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS price_snapshots (
		id BIGSERIAL PRIMARY KEY,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		route TEXT NOT NULL,
		departure_date TEXT NOT NULL,
		best_price NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		captured_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS price_alert_leads (
		id BIGSERIAL PRIMARY KEY,
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

// PostgresStorage is the PostgreSQL storage implementation, using the pgx
// driver through database/sql.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage connects to PostgreSQL and runs migrations.
func NewPostgresStorage(cfg PostgresConfig) (*PostgresStorage, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	db, err := sql.Open("pgx", cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *PostgresStorage) migrate() error {
	for _, q := range postgresMigrations {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func (s *PostgresStorage) Health() error {
	return s.db.Ping()
}

func (s *PostgresStorage) UpsertLead(ctx context.Context, lead Lead) error {
	lead = normalizeLead(lead)

	var price interface{}
	if lead.LastSeenPrice != nil {
		price = lead.LastSeenPrice.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_alert_leads
			(email, origin, destination, departure_date, last_seen_price, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email, origin, destination, departure_date)
		DO UPDATE SET
			last_seen_price = EXCLUDED.last_seen_price,
			currency = EXCLUDED.currency`,
		lead.Email, lead.Origin, lead.Destination, lead.DepartureDate,
		price, lead.Currency, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert lead: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListLeads(ctx context.Context) ([]Lead, error) {
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

func (s *PostgresStorage) UpdateLeadLastSeen(ctx context.Context, id int64, price decimal.Decimal, currency string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE price_alert_leads
		SET last_seen_price = $1, currency = $2
		WHERE id = $3`,
		price.String(), currency, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update lead %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStorage) InsertSnapshot(ctx context.Context, snap PriceSnapshot) error {
	snap = normalizeSnapshot(snap)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_snapshots
			(origin, destination, route, departure_date, best_price, currency, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		snap.Origin, snap.Destination, snap.Route, snap.DepartureDate,
		snap.BestPrice.String(), snap.Currency, snap.CapturedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CountSnapshots(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_snapshots`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

func (s *PostgresStorage) RecentSnapshots(ctx context.Context, limit int) ([]PriceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, origin, destination, route, departure_date, best_price, currency, captured_at
		FROM price_snapshots
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

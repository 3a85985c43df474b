// Package storage persists price-alert leads and price snapshots. Two
// backends are supported: SQLite for single-node deployments and PostgreSQL
// for anything shared.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"farearound/internal/common/errors"
	"farearound/internal/config"
)

// Lead is a saved traveler request awaiting price monitoring. Unique per
// (email, origin, destination, departure date).
type Lead struct {
	ID            int64
	Email         string
	Origin        string
	Destination   string
	DepartureDate string // YYYY-MM-DD
	LastSeenPrice *decimal.Decimal
	Currency      *string
	CreatedAt     time.Time
}

// PriceSnapshot is an append-only record of a best price observed for a route
// at a point in time. Never updated or deleted.
type PriceSnapshot struct {
	ID            int64
	Origin        string
	Destination   string
	Route         string // origin + "-" + destination
	DepartureDate string
	BestPrice     decimal.Decimal
	Currency      string
	CapturedAt    time.Time
}

// LeadStore manages price-alert leads.
type LeadStore interface {
	// UpsertLead inserts a lead or, on a (email, origin, destination,
	// departure_date) conflict, refreshes its last-seen price and currency.
	UpsertLead(ctx context.Context, lead Lead) error
	// ListLeads returns all saved leads.
	ListLeads(ctx context.Context) ([]Lead, error)
	// UpdateLeadLastSeen sets the stored baseline price for one lead.
	UpdateLeadLastSeen(ctx context.Context, id int64, price decimal.Decimal, currency string) error
}

// SnapshotStore records observed prices.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, snap PriceSnapshot) error
	CountSnapshots(ctx context.Context) (int64, error)
	// RecentSnapshots returns the newest snapshots, most recent first.
	RecentSnapshots(ctx context.Context, limit int) ([]PriceSnapshot, error)
}

// Storage is the full persistence surface consumed by the application.
type Storage interface {
	LeadStore
	SnapshotStore

	Health() error
	Close() error
}

// New creates a storage backend based on configuration.
func New(cfg *config.Config) (Storage, error) {
	switch cfg.DatabaseType {
	case "sqlite":
		return NewSQLiteStorage(cfg.DatabasePath)
	case "postgres", "postgresql":
		return NewPostgresStorage(PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			Database: cfg.PostgresDB,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			SSLMode:  cfg.PostgresSSLMode,
		})
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported database type: %s", cfg.DatabaseType))
	}
}

// normalizeLead canonicalizes a lead the way every writer must: lowercase
// email, uppercase IATA codes and currency.
func normalizeLead(lead Lead) Lead {
	lead.Email = strings.ToLower(strings.TrimSpace(lead.Email))
	lead.Origin = strings.ToUpper(strings.TrimSpace(lead.Origin))
	lead.Destination = strings.ToUpper(strings.TrimSpace(lead.Destination))
	if lead.Currency != nil {
		c := strings.ToUpper(strings.TrimSpace(*lead.Currency))
		if c == "" {
			lead.Currency = nil
		} else {
			lead.Currency = &c
		}
	}
	return lead
}

// normalizeSnapshot canonicalizes codes and derives the route column.
func normalizeSnapshot(snap PriceSnapshot) PriceSnapshot {
	snap.Origin = strings.ToUpper(strings.TrimSpace(snap.Origin))
	snap.Destination = strings.ToUpper(strings.TrimSpace(snap.Destination))
	snap.Route = snap.Origin + "-" + snap.Destination
	snap.Currency = strings.ToUpper(strings.TrimSpace(snap.Currency))
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	return snap
}

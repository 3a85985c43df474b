package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestSQLiteStorage_UpsertAndListLeads(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.UpsertLead(ctx, Lead{
		Email:         " Traveler@Example.COM ",
		Origin:        "blr",
		Destination:   "del",
		DepartureDate: "2025-07-01",
	}))

	leads, err := s.ListLeads(ctx)
	require.NoError(t, err)
	require.Len(t, leads, 1)

	lead := leads[0]
	assert.Equal(t, "traveler@example.com", lead.Email)
	assert.Equal(t, "BLR", lead.Origin)
	assert.Equal(t, "DEL", lead.Destination)
	assert.Equal(t, "2025-07-01", lead.DepartureDate)
	assert.Nil(t, lead.LastSeenPrice)
	assert.Nil(t, lead.Currency)
	assert.False(t, lead.CreatedAt.IsZero())
}

func TestSQLiteStorage_UpsertConflictUpdatesPrice(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	base := Lead{
		Email:         "traveler@example.com",
		Origin:        "BLR",
		Destination:   "DEL",
		DepartureDate: "2025-07-01",
	}
	require.NoError(t, s.UpsertLead(ctx, base))

	updated := base
	updated.LastSeenPrice = decPtr("4500.00")
	updated.Currency = strPtr("inr")
	require.NoError(t, s.UpsertLead(ctx, updated))

	leads, err := s.ListLeads(ctx)
	require.NoError(t, err)
	require.Len(t, leads, 1, "same route and email must not create a second lead")

	require.NotNil(t, leads[0].LastSeenPrice)
	assert.True(t, leads[0].LastSeenPrice.Equal(decimal.RequireFromString("4500.00")))
	require.NotNil(t, leads[0].Currency)
	assert.Equal(t, "INR", *leads[0].Currency)
}

func TestSQLiteStorage_UpdateLeadLastSeen(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.UpsertLead(ctx, Lead{
		Email:         "traveler@example.com",
		Origin:        "BLR",
		Destination:   "DEL",
		DepartureDate: "2025-07-01",
	}))

	leads, err := s.ListLeads(ctx)
	require.NoError(t, err)
	require.Len(t, leads, 1)

	require.NoError(t, s.UpdateLeadLastSeen(ctx, leads[0].ID, decimal.RequireFromString("3999.50"), "INR"))

	leads, err = s.ListLeads(ctx)
	require.NoError(t, err)
	require.NotNil(t, leads[0].LastSeenPrice)
	assert.True(t, leads[0].LastSeenPrice.Equal(decimal.RequireFromString("3999.50")))
}

func TestSQLiteStorage_Snapshots(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	capturedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, price := range []string{"4500", "4300", "4100"} {
		require.NoError(t, s.InsertSnapshot(ctx, PriceSnapshot{
			Origin:        "blr",
			Destination:   "del",
			DepartureDate: "2025-07-01",
			BestPrice:     decimal.RequireFromString(price),
			Currency:      "inr",
			CapturedAt:    capturedAt.Add(time.Duration(i) * time.Hour),
		}))
	}

	count, err := s.CountSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	recent, err := s.RecentSnapshots(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Most recent first.
	assert.True(t, recent[0].BestPrice.Equal(decimal.RequireFromString("4100")))
	assert.Equal(t, "BLR-DEL", recent[0].Route)
	assert.Equal(t, "INR", recent[0].Currency)
	assert.Equal(t, capturedAt.Add(2*time.Hour), recent[0].CapturedAt.UTC())
}

func TestSQLiteStorage_EmptyPathRejected(t *testing.T) {
	_, err := NewSQLiteStorage("")
	assert.Error(t, err)
}

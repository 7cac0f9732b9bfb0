package storage

import (
	"context"
	"testing"
	"time"

	"github.com/raterudder/energyadvisor/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLedger() []types.AcceptedRecommendation {
	accepted := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	completed := accepted.Add(48 * time.Hour)
	return []types.AcceptedRecommendation{
		{
			ID:               "rec_1",
			Type:             "battery management",
			Action:           "Charge battery overnight",
			FinancialImpact:  "Save $150",
			ProfitInUSD:      150,
			AcceptedAt:       accepted,
			CompletedAt:      &completed,
			Status:           types.StatusCompleted,
			OptimizationGoal: "cost_reduction",
			Period:           "daily",
		},
		{
			ID:               "rec_2",
			Type:             "load shifting",
			Action:           "Run HVAC pre-cooling at 5am",
			ProfitInUSD:      42.5,
			AcceptedAt:       accepted.Add(time.Hour),
			Status:           types.StatusPending,
			OptimizationGoal: "carbon_footprint",
			Period:           "hourly",
		},
	}
}

// testStoreRoundTrip runs the behavior every Store must share.
func testStoreRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()

	recs, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	want := sampleLedger()
	require.NoError(t, s.Save(ctx, want))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// shrinking replaces rather than merges
	require.NoError(t, s.Save(ctx, want[1:]))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want[1:], got)

	require.NoError(t, s.Save(ctx, nil))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	testStoreRoundTrip(t, m)

	t.Run("copies", func(t *testing.T) {
		ctx := context.Background()
		recs := sampleLedger()
		require.NoError(t, m.Save(ctx, recs))
		recs[0].Action = "changed"

		got, err := m.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Charge battery overnight", got[0].Action)
	})
}

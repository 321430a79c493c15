package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainpulse/internal/domain"
	"chainpulse/internal/storage"
)

func successResult(chainID string, tps float64) *domain.MeasurementResult {
	total := tps * 1000
	return &domain.MeasurementResult{
		ChainID:      chainID,
		ChainName:    "Chain " + chainID,
		EndpointUsed: "https://rpc.example.com/" + chainID,
		TPSEstimate:  &tps,
		TotalTxCount: &total,
		Status:       domain.StatusSuccess,
		ObservedAt:   time.Now().UTC(),
	}
}

func TestMetricsStore_UpsertInsertsAndGets(t *testing.T) {
	ctx := context.Background()
	s := NewMetricsStore()

	require.NoError(t, s.Upsert(ctx, successResult("1", 12.5)))

	rec, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Chain 1", rec.ChainName)
	require.NotNil(t, rec.TPS10Min)
	assert.Equal(t, 12.5, *rec.TPS10Min)
	assert.Equal(t, "success", rec.Status)
	assert.Equal(t, domain.HealthLive, rec.HealthStatus)
}

func TestMetricsStore_UpsertIdempotentOnKey(t *testing.T) {
	ctx := context.Background()
	s := NewMetricsStore()

	require.NoError(t, s.Upsert(ctx, successResult("1", 10)))
	require.NoError(t, s.Upsert(ctx, successResult("1", 20)))

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 20.0, *records[0].TPS10Min)
}

func TestMetricsStore_SparseOverwritePreservesCollaboratorFields(t *testing.T) {
	ctx := context.Background()
	s := NewMetricsStore()

	require.NoError(t, s.Upsert(ctx, successResult("1", 10)))
	require.NoError(t, s.SetExplorerURL(ctx, "1", "https://etherscan.io"))
	require.NoError(t, s.SetSocialHandle(ctx, "1", "@ethereum"))
	require.NoError(t, s.MarkDead(ctx, "1", true))

	// A later run's error result must not clear any of the three.
	fail := &domain.MeasurementResult{
		ChainID:     "1",
		ChainName:   "Chain 1",
		Status:      domain.StatusError,
		ErrorDetail: "timeout",
		ObservedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.Upsert(ctx, fail))

	rec, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "https://etherscan.io", rec.ExplorerURL)
	assert.Equal(t, "@ethereum", rec.XHandle)
	assert.True(t, rec.IsDead)
	assert.Equal(t, "error", rec.Status)
	assert.Equal(t, "timeout", rec.ErrorMessage)
	assert.Equal(t, "timeout", rec.HealthStatus)
	assert.Nil(t, rec.TPS10Min)
}

func TestMetricsStore_GetNotFound(t *testing.T) {
	s := NewMetricsStore()
	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMetricsStore_UpdateNotFound(t *testing.T) {
	s := NewMetricsStore()
	require.ErrorIs(t, s.SetExplorerURL(context.Background(), "missing", "x"), storage.ErrNotFound)
	require.ErrorIs(t, s.MarkDead(context.Background(), "missing", true), storage.ErrNotFound)
}

func TestMetricsStore_RejectsInvalidInput(t *testing.T) {
	s := NewMetricsStore()
	require.ErrorIs(t, s.Upsert(context.Background(), nil), storage.ErrInvalidInput)
	require.ErrorIs(t, s.Upsert(context.Background(), &domain.MeasurementResult{}), storage.ErrInvalidInput)
}

func TestMetricsStore_ListSortedByChainID(t *testing.T) {
	ctx := context.Background()
	s := NewMetricsStore()
	for _, id := range []string{"10", "1", "2"} {
		require.NoError(t, s.Upsert(ctx, successResult(id, 1)))
	}

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "1", records[0].ChainID)
	assert.Equal(t, "10", records[1].ChainID)
	assert.Equal(t, "2", records[2].ChainID)
}

func TestMetricsStore_ConcurrentUpsertsDistinctKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMetricsStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Upsert(ctx, successResult(fmt.Sprintf("chain-%d", i), float64(i)))
		}(i)
	}
	wg.Wait()

	records, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 50)
}

func TestHistoryStore_AppendKeepsEveryObservation(t *testing.T) {
	ctx := context.Background()
	s := NewHistoryStore()

	require.NoError(t, s.Append(ctx, successResult("1", 10)))
	require.NoError(t, s.Append(ctx, successResult("1", 11)))

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 10.0, *entries[0].TPSEstimate)
	assert.Equal(t, 11.0, *entries[1].TPSEstimate)
}

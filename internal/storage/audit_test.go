package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAudit(t *testing.T) *Audit {
	t.Helper()
	store, err := Create(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewAudit(store)
}

func TestAuditRecordAndQuery(t *testing.T) {
	t.Parallel()
	audit := newTestAudit(t)
	ctx := context.Background()

	start := time.Unix(1700000000, 0)
	id, err := audit.Record(ctx, "search", start, start.Add(250*time.Millisecond), RecordOptions{
		Parameters: `{"q":"go"}`,
		Result:     `{"hits":3}`,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	calls, err := audit.ByName(ctx, "search", 0)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
	assert.Equal(t, int64(250), calls[0].DurationMs)
	assert.Equal(t, `{"q":"go"}`, calls[0].Parameters)
	assert.Empty(t, calls[0].Error)
}

func TestAuditSince(t *testing.T) {
	t.Parallel()
	audit := newTestAudit(t)
	ctx := context.Background()

	old := time.Unix(1600000000, 0)
	recent := time.Unix(1700000000, 0)
	_, err := audit.Record(ctx, "old", old, old.Add(time.Second), RecordOptions{})
	require.NoError(t, err)
	_, err = audit.Record(ctx, "recent", recent, recent.Add(time.Second), RecordOptions{})
	require.NoError(t, err)

	calls, err := audit.Since(ctx, 1650000000, 0)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "recent", calls[0].Name)
}

func TestAuditLimit(t *testing.T) {
	t.Parallel()
	audit := newTestAudit(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		_, err := audit.Record(ctx, "tool", base.Add(time.Duration(i)*time.Second), base.Add(time.Duration(i+1)*time.Second), RecordOptions{})
		require.NoError(t, err)
	}

	calls, err := audit.ByName(ctx, "tool", 2)
	require.NoError(t, err)
	assert.Len(t, calls, 2)
	// Most recent first.
	assert.True(t, calls[0].StartedAt.After(calls[1].StartedAt))
}

func TestAuditStats(t *testing.T) {
	t.Parallel()
	audit := newTestAudit(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	_, err := audit.Record(ctx, "fetch", base, base.Add(100*time.Millisecond), RecordOptions{})
	require.NoError(t, err)
	_, err = audit.Record(ctx, "fetch", base, base.Add(300*time.Millisecond), RecordOptions{Error: "timeout"})
	require.NoError(t, err)
	_, err = audit.Record(ctx, "parse", base, base.Add(50*time.Millisecond), RecordOptions{})
	require.NoError(t, err)

	stats, err := audit.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	// Ordered by name.
	assert.Equal(t, "fetch", stats[0].Name)
	assert.Equal(t, int64(2), stats[0].Total)
	assert.Equal(t, int64(1), stats[0].Successful)
	assert.Equal(t, int64(1), stats[0].Failed)
	assert.InDelta(t, 200.0, stats[0].AvgDurationMs, 0.1)

	assert.Equal(t, "parse", stats[1].Name)
	assert.Equal(t, int64(1), stats[1].Total)
}

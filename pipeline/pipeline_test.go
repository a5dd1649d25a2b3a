package pipeline_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/duetlabs/duet/pipeline"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRequestConsumesReadySlot(t *testing.T) {
	var calls atomic.Int64
	p := pipeline.New(discardLogger(), func(_ context.Context, snap pipeline.Snapshot) (string, error) {
		calls.Add(1)
		return "buffered:" + snap.Speaker, nil
	})

	snap := pipeline.Snapshot{Speaker: "alex", LastSeq: 4, Essence: "open protocols"}
	p.Prefetch(context.Background(), snap)
	p.Wait("alex")
	require.Equal(t, pipeline.StatusReady, p.SlotStatus("alex"))

	text, hit, err := p.Request(context.Background(), snap)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "buffered:alex", text)
	require.Equal(t, pipeline.StatusConsumed, p.SlotStatus("alex"))
	require.EqualValues(t, 1, calls.Load())

	m := p.Metrics()
	require.EqualValues(t, 1, m.Hits)
	require.EqualValues(t, 0, m.Misses)
	require.Equal(t, 1.0, m.HitRate)
}

func TestRequestWithoutSlotIsSynchronousMiss(t *testing.T) {
	p := pipeline.New(discardLogger(), func(_ context.Context, _ pipeline.Snapshot) (string, error) {
		return "fresh", nil
	})

	text, hit, err := p.Request(context.Background(), pipeline.Snapshot{Speaker: "sam"})
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, "fresh", text)

	m := p.Metrics()
	require.EqualValues(t, 0, m.Hits)
	require.EqualValues(t, 1, m.Misses)
}

func TestStaleReadySlotIsInvalidatedAndRegenerated(t *testing.T) {
	p := pipeline.New(discardLogger(), func(_ context.Context, snap pipeline.Snapshot) (string, error) {
		return "for seq " + string(rune('0'+snap.LastSeq)), nil
	})

	p.Prefetch(context.Background(), pipeline.Snapshot{Speaker: "alex", LastSeq: 1})
	p.Wait("alex")

	// The context moved on before the buffered response was requested.
	text, hit, err := p.Request(context.Background(), pipeline.Snapshot{Speaker: "alex", LastSeq: 2})
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, "for seq 2", text)
}

func TestPrefetchIsIdempotentForSameSnapshot(t *testing.T) {
	var calls atomic.Int64
	p := pipeline.New(discardLogger(), func(_ context.Context, _ pipeline.Snapshot) (string, error) {
		calls.Add(1)
		return "once", nil
	})

	snap := pipeline.Snapshot{Speaker: "alex", LastSeq: 7, Instruction: "dig into the tradeoff"}
	p.Prefetch(context.Background(), snap)
	p.Wait("alex")
	p.Prefetch(context.Background(), snap)
	p.Wait("alex")

	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, pipeline.StatusReady, p.SlotStatus("alex"))
}

func TestSupersededPrefetchDiscardsLateResult(t *testing.T) {
	release := make(chan struct{})
	p := pipeline.New(discardLogger(), func(_ context.Context, snap pipeline.Snapshot) (string, error) {
		if snap.LastSeq == 1 {
			<-release
			return "stale", nil
		}
		return "current", nil
	})

	p.Prefetch(context.Background(), pipeline.Snapshot{Speaker: "alex", LastSeq: 1})
	// Context C2 arrives while the C1 generation is still running.
	p.Prefetch(context.Background(), pipeline.Snapshot{Speaker: "alex", LastSeq: 2})
	p.Wait("alex")
	close(release)

	text, hit, err := p.Request(context.Background(), pipeline.Snapshot{Speaker: "alex", LastSeq: 2})
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "current", text)
	require.EqualValues(t, 1, p.Metrics().Discarded)
}

func TestInvalidateIfStale(t *testing.T) {
	p := pipeline.New(discardLogger(), func(_ context.Context, _ pipeline.Snapshot) (string, error) {
		return "x", nil
	})

	snap := pipeline.Snapshot{Speaker: "sam", LastSeq: 3}
	p.Prefetch(context.Background(), snap)
	p.Wait("sam")

	require.False(t, p.InvalidateIfStale("sam", snap.Hash()))
	require.Equal(t, pipeline.StatusReady, p.SlotStatus("sam"))

	changed := pipeline.Snapshot{Speaker: "sam", LastSeq: 4}
	require.True(t, p.InvalidateIfStale("sam", changed.Hash()))
	require.Equal(t, pipeline.StatusInvalidated, p.SlotStatus("sam"))
}

func TestFailedPrefetchDegradesToMiss(t *testing.T) {
	fail := true
	p := pipeline.New(discardLogger(), func(_ context.Context, _ pipeline.Snapshot) (string, error) {
		if fail {
			fail = false
			return "", context.DeadlineExceeded
		}
		return "recovered", nil
	})

	snap := pipeline.Snapshot{Speaker: "alex", LastSeq: 9}
	p.Prefetch(context.Background(), snap)
	p.Wait("alex")
	require.Equal(t, pipeline.StatusInvalidated, p.SlotStatus("alex"))

	text, hit, err := p.Request(context.Background(), snap)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, "recovered", text)
}

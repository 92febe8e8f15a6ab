package buffer

import (
	"sync"
	"testing"

	"github.com/loykin/jitter/internal/gesture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func circle(id gesture.ID, p gesture.Phase, progress float64) gesture.Circle {
	return gesture.Circle{ID: id, Phase: p, Progress: progress, Radius: 10}
}

func newCircles(t *testing.T, consume bool) *Buffer[gesture.Circle] {
	t.Helper()
	return New[gesture.Circle](Options{Category: gesture.CategoryCircle, Consumption: consume})
}

func ids[T gesture.Record](recs []T) []gesture.ID {
	out := make([]gesture.ID, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.GestureID())
	}
	return out
}

func TestNotifyLatestRecordWins(t *testing.T) {
	b := newCircles(t, true)
	require.NoError(t, b.Notify(circle(1, gesture.PhaseStart, 0)))
	for _, p := range []float64{0.1, 0.4, 0.9} {
		require.NoError(t, b.Notify(circle(1, gesture.PhaseUpdate, p)))
	}
	rec, ok := b.Get(1)
	require.True(t, ok)
	assert.Equal(t, 0.9, rec.Progress)
	assert.Equal(t, 1, b.Len())
}

func TestNotifyUpdateWithoutStartIsBuffered(t *testing.T) {
	b := newCircles(t, true)
	require.NoError(t, b.Notify(circle(4, gesture.PhaseUpdate, 0.3)))
	assert.Equal(t, StateOpen, b.State(4))
}

func TestNotifyRejectsInvalidPhase(t *testing.T) {
	b := newCircles(t, true)
	err := b.Notify(gesture.Circle{ID: 1})
	assert.ErrorIs(t, err, gesture.ErrInvalidPhase)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, uint64(0), b.Stats().Notified)
}

func TestConsumedUpdatesAreSuppressed(t *testing.T) {
	b := newCircles(t, true)
	require.NoError(t, b.Notify(circle(1, gesture.PhaseStart, 0)))
	got := b.Take(nil)
	require.Equal(t, []gesture.ID{1}, ids(got))
	assert.Equal(t, StateConsumed, b.State(1))

	require.NoError(t, b.Notify(circle(1, gesture.PhaseUpdate, 2)))
	assert.Equal(t, 0, b.Len(), "update of a consumed id must not re-enter the buffer")
	assert.Empty(t, b.Take(nil))
	assert.Equal(t, uint64(1), b.Stats().Suppressed)
}

func TestStopClearsLedgerAfterDrain(t *testing.T) {
	b := newCircles(t, true)
	require.NoError(t, b.Notify(circle(1, gesture.PhaseStart, 0)))
	require.Len(t, b.Take(nil), 1)
	require.NoError(t, b.Notify(circle(1, gesture.PhaseStop, 1)))
	assert.Equal(t, StateConsumed, b.State(1), "ledger entry is removed at drain, not at notify")

	assert.Empty(t, b.Take(nil))
	assert.Equal(t, StateAbsent, b.State(1))
	assert.Empty(t, b.Consumed())
	assert.Equal(t, 0, b.Len())
}

func TestStopOfUnconsumedGestureIsDeliveredOnceThenPruned(t *testing.T) {
	b := newCircles(t, true)
	require.NoError(t, b.Notify(circle(9, gesture.PhaseStart, 0)))
	require.NoError(t, b.Notify(circle(9, gesture.PhaseStop, 0.2)))

	got := b.Take(gesture.MinProgress(1))
	assert.Empty(t, got)
	assert.Equal(t, StateAbsent, b.State(9), "rejected stop must still be pruned")
}

func TestRepeatedDrainWithConsumption(t *testing.T) {
	b := newCircles(t, true)
	require.NoError(t, b.Notify(circle(1, gesture.PhaseStart, 1)))
	require.NoError(t, b.Notify(circle(2, gesture.PhaseStart, 1)))
	assert.Equal(t, []gesture.ID{1, 2}, ids(b.Take(nil)))
	assert.Empty(t, b.Take(nil))
}

func TestRepeatedDrainWithoutConsumption(t *testing.T) {
	b := newCircles(t, false)
	require.NoError(t, b.Notify(circle(1, gesture.PhaseStart, 1)))
	for i := 0; i < 3; i++ {
		assert.Equal(t, []gesture.ID{1}, ids(b.Take(nil)))
	}
	assert.Empty(t, b.Consumed())
}

func TestFilterNeverReturnsOrConsumesRejected(t *testing.T) {
	b := newCircles(t, true)
	require.NoError(t, b.Notify(circle(1, gesture.PhaseUpdate, 0.5)))
	require.NoError(t, b.Notify(circle(2, gesture.PhaseUpdate, 1.5)))
	require.NoError(t, b.Notify(circle(3, gesture.PhaseUpdate, 2.5)))

	got := b.Take(gesture.MinProgress(1))
	for _, c := range got {
		assert.GreaterOrEqual(t, c.Progress, 1.0)
	}
	assert.Equal(t, []gesture.ID{2, 3}, ids(got))
	assert.Equal(t, StateOpen, b.State(1))

	// a less strict consumer still sees the rejected record
	assert.Equal(t, []gesture.ID{1}, ids(b.Take(gesture.MinProgress(0))))
}

func TestProgressAndRadiusFilter(t *testing.T) {
	b := newCircles(t, true)
	require.NoError(t, b.Notify(gesture.Circle{ID: 1, Phase: gesture.PhaseUpdate, Progress: 2, Radius: 5}))
	require.NoError(t, b.Notify(gesture.Circle{ID: 2, Phase: gesture.PhaseUpdate, Progress: 2, Radius: 25}))
	assert.Equal(t, []gesture.ID{2}, ids(b.Take(gesture.MinProgressRadius(1, 20))))
}

func TestStartReopensConsumedID(t *testing.T) {
	b := newCircles(t, true)
	require.NoError(t, b.Notify(circle(5, gesture.PhaseStart, 0)))
	require.Len(t, b.Take(nil), 1)
	require.NoError(t, b.Notify(circle(5, gesture.PhaseStart, 0)))
	assert.Equal(t, StateOpen, b.State(5))
	assert.Empty(t, b.Consumed(), "buffer and ledger membership are exclusive")
}

func TestScenarioA(t *testing.T) {
	b := newCircles(t, true)
	require.NoError(t, b.Notify(circle(1, gesture.PhaseStart, 0)))
	require.NoError(t, b.Notify(circle(1, gesture.PhaseUpdate, 0.5)))

	assert.Empty(t, b.Take(gesture.MinProgress(1)))
	rec, ok := b.Get(1)
	require.True(t, ok)
	assert.Equal(t, 0.5, rec.Progress)

	require.NoError(t, b.Notify(circle(1, gesture.PhaseUpdate, 1.2)))
	got := b.Take(gesture.MinProgress(1))
	require.Len(t, got, 1)
	assert.Equal(t, gesture.ID(1), got[0].ID)
	assert.Equal(t, 1.2, got[0].Progress)
	assert.Equal(t, 0, b.Len())
}

func TestScenarioBFinalDelivery(t *testing.T) {
	b := New[gesture.Swipe](Options{Category: gesture.CategorySwipe, Consumption: true, FinalDelivery: true})
	require.NoError(t, b.Notify(gesture.Swipe{ID: 2, Phase: gesture.PhaseStart}))
	require.Len(t, b.Take(nil), 1)

	require.NoError(t, b.Notify(gesture.Swipe{ID: 2, Phase: gesture.PhaseUpdate, Speed: 300}))
	assert.Empty(t, b.Take(nil))

	require.NoError(t, b.Notify(gesture.Swipe{ID: 2, Phase: gesture.PhaseStop, Speed: 120}))
	got := b.Take(nil)
	require.Len(t, got, 1)
	assert.Equal(t, gesture.ID(2), got[0].ID)
	assert.Equal(t, gesture.PhaseStop, got[0].Phase)

	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Consumed())
	assert.Empty(t, b.Take(nil))
}

func TestScenarioBWithoutFinalDelivery(t *testing.T) {
	b := New[gesture.Swipe](Options{Category: gesture.CategorySwipe, Consumption: true})
	require.NoError(t, b.Notify(gesture.Swipe{ID: 2, Phase: gesture.PhaseStart}))
	require.Len(t, b.Take(nil), 1)
	require.NoError(t, b.Notify(gesture.Swipe{ID: 2, Phase: gesture.PhaseUpdate}))
	require.NoError(t, b.Notify(gesture.Swipe{ID: 2, Phase: gesture.PhaseStop}))

	assert.Empty(t, b.Take(nil))
	assert.Equal(t, StateAbsent, b.State(2))
}

func TestScenarioC(t *testing.T) {
	b := New[gesture.KeyTap](Options{Category: gesture.CategoryKeyTap, Consumption: false})
	require.NoError(t, b.Notify(gesture.KeyTap{ID: 3, Phase: gesture.PhaseStart}))
	assert.Equal(t, []gesture.ID{3}, ids(b.Take(nil)))
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, []gesture.ID{3}, ids(b.Take(nil)))

	require.NoError(t, b.Notify(gesture.KeyTap{ID: 3, Phase: gesture.PhaseStop}))
	assert.Equal(t, []gesture.ID{3}, ids(b.Take(nil)))
	assert.Empty(t, b.Take(nil))
}

func TestSetConsumptionAtRuntime(t *testing.T) {
	b := newCircles(t, false)
	require.NoError(t, b.Notify(circle(1, gesture.PhaseStart, 0)))
	require.Len(t, b.Take(nil), 1)
	b.SetConsumption(true)
	assert.True(t, b.ConsumptionEnabled())
	require.Len(t, b.Take(nil), 1)
	assert.Empty(t, b.Take(nil))
}

func TestSettleReconcilesSupersedingFrame(t *testing.T) {
	t.Run("update superseded by update is suppressed", func(t *testing.T) {
		b := newCircles(t, true)
		require.NoError(t, b.Notify(circle(1, gesture.PhaseUpdate, 0.5)))
		stale := b.entries[1]
		require.NoError(t, b.Notify(circle(1, gesture.PhaseUpdate, 0.8)))

		var out []gesture.Circle
		b.settle(stale, true, &out, nil)
		require.Len(t, out, 1)
		assert.Equal(t, 0.5, out[0].Progress)
		assert.Equal(t, StateConsumed, b.State(1))
	})

	t.Run("update superseded by stop ends the gesture at next drain", func(t *testing.T) {
		b := newCircles(t, true)
		require.NoError(t, b.Notify(circle(1, gesture.PhaseUpdate, 0.5)))
		stale := b.entries[1]
		require.NoError(t, b.Notify(circle(1, gesture.PhaseStop, 0.9)))

		var out []gesture.Circle
		b.settle(stale, true, &out, nil)
		require.Len(t, out, 1)
		assert.Equal(t, 0, b.Len())
		assert.Empty(t, b.Take(nil))
		assert.Equal(t, StateAbsent, b.State(1))
	})

	t.Run("stop superseded by restart keeps new gesture", func(t *testing.T) {
		b := newCircles(t, false)
		require.NoError(t, b.Notify(circle(1, gesture.PhaseStop, 1)))
		stale := b.entries[1]
		require.NoError(t, b.Notify(circle(1, gesture.PhaseStart, 0)))

		var out []gesture.Circle
		b.settle(stale, false, &out, nil)
		assert.Empty(t, out)
		rec, ok := b.Get(1)
		require.True(t, ok)
		assert.Equal(t, gesture.PhaseStart, rec.Phase)
	})

	t.Run("entry taken by another drain is skipped", func(t *testing.T) {
		b := newCircles(t, true)
		require.NoError(t, b.Notify(circle(1, gesture.PhaseUpdate, 0.5)))
		stale := b.entries[1]
		require.Len(t, b.Take(nil), 1)

		var out []gesture.Circle
		b.settle(stale, true, &out, nil)
		assert.Empty(t, out, "an id is delivered to at most one drain")
	})
}

func TestObserverSeesLifecycle(t *testing.T) {
	var (
		mu    sync.Mutex
		kinds []EventKind
	)
	b := New[gesture.Circle](Options{
		Category:    gesture.CategoryCircle,
		Consumption: true,
		Observer: func(ev Event) {
			mu.Lock()
			kinds = append(kinds, ev.Kind)
			mu.Unlock()
		},
	})
	require.NoError(t, b.Notify(circle(1, gesture.PhaseStart, 0)))
	b.Take(nil)
	require.NoError(t, b.Notify(circle(1, gesture.PhaseUpdate, 1)))
	require.NoError(t, b.Notify(circle(1, gesture.PhaseStop, 1)))
	b.Take(nil)

	assert.Equal(t, []EventKind{EventNotified, EventDelivered, EventSuppressed, EventSuppressed, EventPruned}, kinds)
	st := b.Stats()
	assert.Equal(t, uint64(1), st.Notified)
	assert.Equal(t, uint64(2), st.Suppressed)
	assert.Equal(t, uint64(1), st.Delivered)
	assert.Equal(t, uint64(1), st.Pruned)
}

func TestReset(t *testing.T) {
	b := newCircles(t, true)
	require.NoError(t, b.Notify(circle(1, gesture.PhaseStart, 0)))
	require.NoError(t, b.Notify(circle(2, gesture.PhaseStart, 0)))
	b.Take(func(c gesture.Circle) bool { return c.ID == 1 })
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Consumed())
}

// Concurrent producer/consumer: every gesture must be delivered exactly once
// and nothing may be left behind once all gestures stopped.
func TestConcurrentNotifyAndTake(t *testing.T) {
	b := newCircles(t, true)
	const gestures = 200
	const updates = 20

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered = make(map[gesture.ID]int)
		done      = make(chan struct{})
	)
	drain := func() {
		for _, c := range b.Take(nil) {
			mu.Lock()
			delivered[c.ID]++
			mu.Unlock()
		}
	}

	wg.Add(2)
	for w := 0; w < 2; w++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					drain()
				}
			}
		}()
	}

	for id := gesture.ID(1); id <= gestures; id++ {
		_ = b.Notify(circle(id, gesture.PhaseStart, 0))
		for u := 1; u <= updates; u++ {
			_ = b.Notify(circle(id, gesture.PhaseUpdate, float64(u)/10))
		}
		_ = b.Notify(circle(id, gesture.PhaseStop, 3))
	}
	close(done)
	wg.Wait()
	drain()
	drain()

	for id := gesture.ID(1); id <= gestures; id++ {
		assert.Equal(t, 1, delivered[id], "gesture %d", id)
	}
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Consumed())
}

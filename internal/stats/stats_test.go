package stats

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/jitter/internal/buffer"
	"github.com/loykin/jitter/internal/gesture"
)

type fakeSource struct {
	mu    sync.Mutex
	stats []buffer.Stats
}

func (f *fakeSource) Stats() []buffer.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]buffer.Stats(nil), f.stats...)
}

func (f *fakeSource) set(s ...buffer.Stats) {
	f.mu.Lock()
	f.stats = s
	f.mu.Unlock()
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestReportLogsDeltas(t *testing.T) {
	var out syncBuffer
	src := &fakeSource{}
	src.set(buffer.Stats{Category: gesture.CategoryCircle, Buffered: 2, Delivered: 5})

	r, err := NewReporter(src, "@every 1h", slog.New(slog.NewTextHandler(&out, nil)))
	require.NoError(t, err)

	r.Report()
	src.set(buffer.Stats{Category: gesture.CategoryCircle, Buffered: 0, Delivered: 8})
	r.Report()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "delivered=5")
	assert.Contains(t, lines[1], "delivered=3")
	assert.Contains(t, lines[1], "category=circle")
	assert.Equal(t, 2, r.Runs())
}

func TestReporterRunsOnSchedule(t *testing.T) {
	src := &fakeSource{}
	src.set(buffer.Stats{Category: gesture.CategorySwipe})
	r, err := NewReporter(src, "@every 1s", slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	r.Start()
	defer r.Stop()
	require.Eventually(t, func() bool { return r.Runs() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestNewReporterInvalidSchedule(t *testing.T) {
	_, err := NewReporter(&fakeSource{}, "whenever", nil)
	assert.Error(t, err)
}

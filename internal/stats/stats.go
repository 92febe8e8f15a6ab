// Package stats reports per-category buffer statistics on a cron schedule.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/loykin/jitter/internal/buffer"
	"github.com/loykin/jitter/internal/metrics"
)

// Source is satisfied by *system.System.
type Source interface {
	Stats() []buffer.Stats
}

// Reporter logs a line per category and refreshes the buffer gauges each
// time its schedule fires. Overlapping runs are skipped.
type Reporter struct {
	src   Source
	sched *cron.Cron
	log   *slog.Logger

	mu   sync.Mutex
	last map[string]buffer.Stats
	runs int
}

// NewReporter parses schedule ("@every 30s", "*/5 * * * *", ...) and returns a
// stopped Reporter.
func NewReporter(src Source, schedule string, log *slog.Logger) (*Reporter, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Reporter{
		src:  src,
		log:  log.With("component", "stats"),
		last: make(map[string]buffer.Stats),
	}
	r.sched = cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := r.sched.AddFunc(schedule, r.Report); err != nil {
		return nil, fmt.Errorf("stats schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Reporter) Start() {
	r.sched.Start()
	r.log.Debug("Stats reporter started")
}

// Stop halts the schedule; the returned context is done once a running report finishes.
func (r *Reporter) Stop() context.Context {
	return r.sched.Stop()
}

// Report logs the current stats once; it is what the schedule runs.
func (r *Reporter) Report() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	for _, st := range r.src.Stats() {
		cat := st.Category.String()
		prev := r.last[cat]
		metrics.SetBufferState(cat, st.Buffered, st.Consumed)
		r.log.Info("Gesture buffer stats",
			"category", cat,
			"buffered", st.Buffered,
			"consumed", st.Consumed,
			"consumption", st.ConsumptionEnabled,
			"notified", st.Notified-prev.Notified,
			"suppressed", st.Suppressed-prev.Suppressed,
			"delivered", st.Delivered-prev.Delivered,
			"pruned", st.Pruned-prev.Pruned,
		)
		r.last[cat] = st
	}
}

// Runs is the number of completed reports.
func (r *Reporter) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

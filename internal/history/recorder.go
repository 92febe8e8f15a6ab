package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/jitter/internal/metrics"
)

const (
	DefaultQueueSize   = 1024
	DefaultSendTimeout = 5 * time.Second
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	Sinks       []Sink
	QueueSize   int
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Recorder hands events to its sinks from a single background goroutine.
// Record never blocks: when the queue is full the event is dropped and counted.
type Recorder struct {
	session     uuid.UUID
	sinks       []Sink
	sendTimeout time.Duration
	log         *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewRecorder(opts RecorderOptions) *Recorder {
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	r := &Recorder{
		session:     uuid.New(),
		sinks:       append([]Sink(nil), opts.Sinks...),
		sendTimeout: timeout,
		queue:       make(chan Event, size),
		done:        make(chan struct{}),
	}
	r.log = l.With("session", r.session.String())
	go r.run()
	return r
}

// Session is stamped on every event recorded through r.
func (r *Recorder) Session() uuid.UUID { return r.session }

// Record queues e for export. It reports false when e was dropped.
func (r *Recorder) Record(e Event) bool {
	if e.Session == uuid.Nil {
		e.Session = r.session
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop("closed")
		return false
	}
	select {
	case r.queue <- e:
		return true
	default:
		r.drop("queue full")
		return false
	}
}

func (r *Recorder) drop(reason string) {
	if r.dropped.Add(1) == 1 {
		r.log.Warn("Dropping history events", "reason", reason)
	}
	metrics.IncHistoryDropped()
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.sendTimeout)
			err := s.Send(ctx, e)
			cancel()
			if err != nil {
				r.failed.Add(1)
				name := SinkName(s)
				metrics.IncHistoryError(name)
				r.log.Warn("History sink send failed", "sink", name, "error", err)
				continue
			}
			r.sent.Add(1)
		}
	}
}

// Close stops accepting events, waits for queued ones to be sent and closes
// every sink implementing io.Closer. It returns ctx.Err() if the queue did not
// drain in time; sinks are left open in that case.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s sink: %w", SinkName(s), err))
			}
		}
	}
	return errors.Join(errs...)
}

// RecorderStats counts sink deliveries; Sent and Failed are per sink attempt.
type RecorderStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
	Queued  int    `json:"queued"`
}

func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Sent:    r.sent.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
		Queued:  len(r.queue),
	}
}

// SinkName returns s.Name() when available, otherwise its Go type.
func SinkName(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

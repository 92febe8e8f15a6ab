package replay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/jitter/internal/gesture"
	"github.com/loykin/jitter/internal/system"
)

// Target is the engine a stream is played into; *system.System satisfies it.
type Target interface {
	Notify(gesture.Record) error
	Batch(gesture.Category, system.Filter) ([]gesture.Record, error)
	Enabled(gesture.Category) bool
}

// Delivery is one non-empty batch seen by the consumer loop.
type Delivery struct {
	Tick     int
	Category gesture.Category
	Records  []gesture.Record
}

// Options configures a playback.
type Options struct {
	ProducerFPS float64
	ConsumerFPS float64
	// CircleFilter applies to circle drains.
	CircleFilter system.Filter
	// OnDelivery is called from the consumer goroutine.
	OnDelivery func(Delivery)
	Logger     *slog.Logger
}

// Summary totals a playback.
type Summary struct {
	Frames        int                      `json:"frames"`
	Notifications int                      `json:"notifications"`
	Rejected      int                      `json:"rejected"`
	ConsumerTicks int                      `json:"consumer_ticks"`
	Delivered     map[gesture.Category]int `json:"delivered"`
}

// Play sends entries to t on a producer ticker and drains every enabled
// category on a consumer ticker until the stream ends, ctx is cancelled or a
// drain fails. A final drain runs after the last frame.
func Play(ctx context.Context, t Target, entries []Entry, opts Options) (Summary, error) {
	if opts.ProducerFPS <= 0 || opts.ConsumerFPS <= 0 {
		return Summary{}, errors.New("replay fps must be positive")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var (
		mu  sync.Mutex
		sum = Summary{Delivered: make(map[gesture.Category]int)}
	)
	produced := make(chan struct{})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(produced)
		tk := time.NewTicker(interval(opts.ProducerFPS))
		defer tk.Stop()
		next := 0
		for frame := 0; next < len(entries); frame++ {
			for ; next < len(entries) && entries[next].At <= frame; next++ {
				rec, err := entries[next].Record()
				if err == nil {
					err = t.Notify(rec)
				}
				mu.Lock()
				sum.Notifications++
				if err != nil {
					sum.Rejected++
				}
				mu.Unlock()
				if err != nil {
					log.Debug("Replay notification rejected", "frame", frame, "error", err)
				}
			}
			mu.Lock()
			sum.Frames = frame + 1
			mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tk.C:
			}
		}
		return nil
	})
	g.Go(func() error {
		tk := time.NewTicker(interval(opts.ConsumerFPS))
		defer tk.Stop()
		for tick := 0; ; tick++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-produced:
				return drainAll(t, tick, opts, &mu, &sum)
			case <-tk.C:
				if err := drainAll(t, tick, opts, &mu, &sum); err != nil {
					return err
				}
			}
		}
	})
	err := g.Wait()
	log.Info("Replay finished", "frames", sum.Frames, "notifications", sum.Notifications,
		"rejected", sum.Rejected, "consumer_ticks", sum.ConsumerTicks)
	return sum, err
}

func drainAll(t Target, tick int, opts Options, mu *sync.Mutex, sum *Summary) error {
	for _, c := range gesture.Categories {
		if !t.Enabled(c) {
			continue
		}
		var f system.Filter
		if c == gesture.CategoryCircle {
			f = opts.CircleFilter
		}
		recs, err := t.Batch(c, f)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			continue
		}
		mu.Lock()
		sum.Delivered[c] += len(recs)
		mu.Unlock()
		if opts.OnDelivery != nil {
			opts.OnDelivery(Delivery{Tick: tick, Category: c, Records: recs})
		}
	}
	mu.Lock()
	sum.ConsumerTicks++
	mu.Unlock()
	return nil
}

func interval(fps float64) time.Duration {
	d := time.Duration(float64(time.Second) / fps)
	if d <= 0 {
		d = time.Nanosecond
	}
	return d
}

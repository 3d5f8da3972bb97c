// Package janitor periodically deletes expired rows from the local caches.
package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/go-kratos/kratos/v2/log"
)

// Cache is one feed's cache as seen by the janitor.
type Cache interface {
	Feed() model.FeedType
	DeleteExpired(ctx context.Context) (int64, error)
}

// Settings is the part of the store the janitor reads.
type Settings interface {
	// GetJanitorInterval is read before every sleep.
	GetJanitorInterval() (int, error)
	// SupportsHighConcurrency selects parallel sweeps.
	SupportsHighConcurrency() bool
}

// Janitor runs continuous sweeps.
type Janitor struct {
	caches   []Cache
	settings Settings
	log      *log.Helper
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a background janitor over caches.
func New(caches []Cache, settings Settings, logger log.Logger) *Janitor {
	return &Janitor{
		caches:   caches,
		settings: settings,
		log:      log.NewHelper(log.With(logger, "module", "janitor")),
		stopChan: make(chan struct{}),
	}
}

// Sweep deletes expired rows from every cache once. Returns rows deleted per feed.
// A failing cache is logged and skipped.
func (j *Janitor) Sweep(ctx context.Context) map[model.FeedType]int64 {
	if j.settings.SupportsHighConcurrency() {
		return j.sweepParallel(ctx)
	}
	return j.sweepSequential(ctx)
}

// sweepSequential sweeps one cache at a time (for SQLite).
func (j *Janitor) sweepSequential(ctx context.Context) map[model.FeedType]int64 {
	results := make(map[model.FeedType]int64, len(j.caches))
	for _, c := range j.caches {
		select {
		case <-ctx.Done():
			return results
		default:
		}
		if n, ok := j.sweepOne(ctx, c); ok {
			results[c.Feed()] = n
		}
	}
	return results
}

// sweepParallel sweeps every cache at once (for PostgreSQL).
func (j *Janitor) sweepParallel(ctx context.Context) map[model.FeedType]int64 {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	results := make(map[model.FeedType]int64, len(j.caches))
	for _, c := range j.caches {
		wg.Add(1)
		go func(c Cache) {
			defer wg.Done()
			if n, ok := j.sweepOne(ctx, c); ok {
				mu.Lock()
				results[c.Feed()] = n
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	return results
}

func (j *Janitor) sweepOne(ctx context.Context, c Cache) (int64, bool) {
	n, err := c.DeleteExpired(ctx)
	if err != nil {
		j.log.WithContext(ctx).Errorw("msg", "sweep failed", "feed", string(c.Feed()), "error", err)
		return 0, false
	}
	return n, true
}

// Start begins the sweep loop.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			results := j.Sweep(ctx)
			cancel()

			total := int64(0)
			for _, n := range results {
				total += n
			}
			if total > 0 {
				j.log.Infof("Janitor: deleted %d expired rows from %d caches", total, len(results))
			}

			interval, _ := j.settings.GetJanitorInterval()
			select {
			case <-j.stopChan:
				return
			case <-time.After(time.Duration(interval) * time.Minute):
			}
		}
	}()
}

// Stop stops the janitor gracefully.
func (j *Janitor) Stop() {
	close(j.stopChan)
	j.wg.Wait()
}

package janitor

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bryan-buckman/photofeed/internal/cache"
	"github.com/bryan-buckman/photofeed/internal/clock"
	"github.com/bryan-buckman/photofeed/internal/database"
	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"
)

type failingCache struct{}

func (failingCache) Feed() model.FeedType { return model.FeedReceived }

func (failingCache) DeleteExpired(context.Context) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestSweepDeletesOnlyExpiredRows(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer db.Close()

	logger := log.NewStdLogger(io.Discard)
	clk := clock.NewManual(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC))
	uploaded := cache.New(db, model.FeedUploaded, 30*time.Minute, clk, logger)
	gallery := cache.New(db, model.FeedGallery, 3*time.Hour, clk, logger)

	photo := model.Photo{ID: 1, Name: "a.jpg", UploadedOn: clk.Now().Add(-time.Hour)}
	require.NoError(t, uploaded.Upsert(ctx, photo))
	require.NoError(t, gallery.Upsert(ctx, photo))
	clk.Advance(time.Hour)

	j := New([]Cache{uploaded, gallery, failingCache{}}, db, logger)
	results := j.Sweep(ctx)
	require.Equal(t, map[model.FeedType]int64{model.FeedUploaded: 1, model.FeedGallery: 0}, results)

	ok, err := gallery.Contains(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
}

type fixedInterval int

func (f fixedInterval) GetJanitorInterval() (int, error) { return int(f), nil }

func (fixedInterval) SupportsHighConcurrency() bool { return false }

// parallelStore reports high concurrency, like the Postgres store.
type parallelStore struct{ fixedInterval }

func (parallelStore) SupportsHighConcurrency() bool { return true }

type countingCache struct {
	feed  model.FeedType
	swept chan struct{}
}

func (c countingCache) Feed() model.FeedType { return c.feed }

func (c countingCache) DeleteExpired(context.Context) (int64, error) {
	select {
	case c.swept <- struct{}{}:
	default:
	}
	return 0, nil
}

// blockingCache holds its sweep until every cache has started, so a
// sequential sweep would never finish.
type blockingCache struct {
	feed    model.FeedType
	started *sync.WaitGroup
}

func (c blockingCache) Feed() model.FeedType { return c.feed }

func (c blockingCache) DeleteExpired(context.Context) (int64, error) {
	c.started.Done()
	c.started.Wait()
	return 2, nil
}

func TestSweepRunsCachesConcurrentlyOnHighConcurrencyStores(t *testing.T) {
	var started sync.WaitGroup
	started.Add(len(model.FeedTypes))
	caches := make([]Cache, 0, len(model.FeedTypes))
	for _, feed := range model.FeedTypes {
		caches = append(caches, blockingCache{feed: feed, started: &started})
	}
	j := New(append(caches, failingCache{}), parallelStore{fixedInterval(60)}, log.NewStdLogger(io.Discard))

	done := make(chan map[model.FeedType]int64, 1)
	go func() { done <- j.Sweep(context.Background()) }()

	select {
	case results := <-done:
		require.Equal(t, map[model.FeedType]int64{
			model.FeedUploaded: 2, model.FeedReceived: 2, model.FeedGallery: 2,
		}, results)
	case <-time.After(5 * time.Second):
		t.Fatal("caches were swept one at a time")
	}
}

func TestStartSweepsImmediatelyAndStops(t *testing.T) {
	c := countingCache{feed: model.FeedGallery, swept: make(chan struct{}, 1)}
	j := New([]Cache{c}, fixedInterval(60), log.NewStdLogger(io.Discard))
	j.Start()

	select {
	case <-c.swept:
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not sweep on start")
	}
	j.Stop()
}

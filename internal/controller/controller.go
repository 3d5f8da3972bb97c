// Package controller grows one screen's in-memory feed a page at a time.
package controller

import (
	"context"
	"sync"

	"github.com/bryan-buckman/photofeed/internal/feedsync"
	"github.com/bryan-buckman/photofeed/internal/freshness"
	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/bryan-buckman/photofeed/internal/orderedfeed"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// Pager loads pages of one feed. *feedsync.Coordinator satisfies it.
type Pager[V any] interface {
	Feed() model.FeedType
	Probe() *freshness.Probe
	GetPage(ctx context.Context, req feedsync.Request) (feedsync.Page[V], error)
}

// Options configures a FeedController.
type Options[V any] struct {
	Owner    uuid.UUID
	PageSize int
	// Key orders the feed, largest first.
	Key func(V) int64
	// Cursor returns the paging timestamp of an item.
	Cursor func(V) model.Cursor
}

// FeedController owns one ordered feed and the cursors bounding it.
// Loads are serialized, so at most one page request is in flight.
type FeedController[V any] struct {
	pager Pager[V]
	opts  Options[V]
	log   *log.Helper

	mu     sync.Mutex
	items  *orderedfeed.Feed[V]
	oldest model.Cursor // next page starts below this
	newest model.Cursor // freshness is measured against this
	end    bool
}

// New creates an empty controller.
func New[V any](pager Pager[V], opts Options[V], logger log.Logger) *FeedController[V] {
	return &FeedController[V]{
		pager:  pager,
		opts:   opts,
		log:    log.NewHelper(log.With(logger, "module", "controller", "feed", string(pager.Feed()))),
		items:  orderedfeed.New(opts.Key, true),
		oldest: model.StartOfFeed,
		newest: model.StartOfFeed,
	}
}

// LoadMore appends the next page. It returns the index each newly inserted
// item landed at, skipping items that replaced one already held, and whether
// the feed is exhausted. Once exhausted it makes no requests.
func (c *FeedController[V]) LoadMore(ctx context.Context) ([]int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.end {
		return nil, true, nil
	}
	return c.load(ctx)
}

// Refresh drops the in-memory feed and reloads it from the head, bypassing
// the freshness throttle so photos uploaded since the last load are picked up.
func (c *FeedController[V]) Refresh(ctx context.Context) ([]int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pager.Probe().ForceReset(c.pager.Feed())
	c.items.Clear()
	c.oldest = model.StartOfFeed
	c.end = false
	return c.load(ctx)
}

func (c *FeedController[V]) load(ctx context.Context) ([]int, bool, error) {
	page, err := c.pager.GetPage(ctx, feedsync.Request{
		Cursor:          c.oldest,
		FirstItemCursor: c.newest,
		PageSize:        c.opts.PageSize,
		Owner:           c.opts.Owner,
	})
	if err != nil {
		return nil, false, err
	}

	indexes := make([]int, 0, len(page.Items))
	for _, item := range page.Items {
		cur := c.opts.Cursor(item)
		if c.oldest.IsStart() || cur < c.oldest {
			c.oldest = cur
		}
		if cur > c.newest {
			c.newest = cur
		}
		if idx, inserted := c.items.Add(item); inserted {
			indexes = append(indexes, idx)
		}
	}
	c.end = page.EndOfFeed
	c.log.WithContext(ctx).Debugf("loaded %d items, %d in feed, end=%t", len(page.Items), c.items.Len(), c.end)
	return indexes, c.end, nil
}

// Remove drops the item with key k, for example after a moderation takedown.
func (c *FeedController[V]) Remove(k int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.RemoveKey(k)
}

// Items returns a snapshot of the feed, newest first.
func (c *FeedController[V]) Items() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Items()
}

// Len returns the number of items held.
func (c *FeedController[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// EndOfFeed reports whether the last load came back short.
func (c *FeedController[V]) EndOfFeed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.end
}

// Newest returns the cursor of the newest item ever loaded, or model.StartOfFeed.
func (c *FeedController[V]) Newest() model.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newest
}

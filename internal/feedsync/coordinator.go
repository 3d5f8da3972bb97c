// Package feedsync decides where each page of a photo feed comes from: the
// local cache, the remote, or fresh remote photos spliced ahead of the next
// remote page.
package feedsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bryan-buckman/photofeed/internal/clock"
	"github.com/bryan-buckman/photofeed/internal/freshness"
	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// Source is the set of feed-specific collaborators a Coordinator drives.
// I is the raw item type, V the view model handed to the caller.
type Source[I, V any] struct {
	FromCache  func(ctx context.Context, cursor model.Cursor, limit int) ([]I, error)
	RemotePage func(ctx context.Context, owner uuid.UUID, cursor model.Cursor, limit int) ([]I, error)
	ClearCache func(ctx context.Context) error
	CachePage  func(ctx context.Context, items []I) error
	ToView     func(items []I) []V
}

// Request describes the page a caller wants.
type Request struct {
	// Cursor is the boundary of the items already delivered; the page holds older items.
	Cursor model.Cursor
	// FirstItemCursor is the newest item the caller knows of, or model.StartOfFeed.
	FirstItemCursor model.Cursor
	PageSize        int
	Owner           uuid.UUID
}

// Page is one loaded page.
type Page[V any] struct {
	Items     []V
	EndOfFeed bool
}

// Coordinator reconciles one feed's cache with its remote.
// Calls for the same feed must be serialized by the caller.
type Coordinator[I, V any] struct {
	feed  model.FeedType
	src   Source[I, V]
	probe *freshness.Probe
	clock clock.Clock
	log   *log.Helper
}

// New creates a coordinator for feed.
func New[I, V any](feed model.FeedType, src Source[I, V], probe *freshness.Probe, clk clock.Clock, logger log.Logger) *Coordinator[I, V] {
	return &Coordinator[I, V]{
		feed:  feed,
		src:   src,
		probe: probe,
		clock: clk,
		log:   log.NewHelper(log.With(logger, "module", "feedsync", "feed", string(feed))),
	}
}

// Feed returns the feed type this coordinator serves.
func (c *Coordinator[I, V]) Feed() model.FeedType {
	return c.feed
}

// Probe returns the freshness probe shared with other coordinators.
func (c *Coordinator[I, V]) Probe() *freshness.Probe {
	return c.probe
}

// GetPage loads the page after req.Cursor.
//
// Unknown freshness degrades to a cache-only page. Zero fresh photos serves a
// full cache page when there is one, otherwise one remote page. Up to a page
// of fresh photos are fetched at "now" and spliced ahead of the next remote
// page. More than a page of fresh photos drops the cache and starts over.
// Whatever came from the remote is cached before the page is returned.
func (c *Coordinator[I, V]) GetPage(ctx context.Context, req Request) (Page[V], error) {
	if req.PageSize <= 0 {
		return Page[V]{}, fmt.Errorf("page size must be positive, got %d", req.PageSize)
	}
	freshCount := 0
	if !req.FirstItemCursor.IsStart() {
		freshCount = c.probe.FreshCount(ctx, c.feed, req.Owner, req.FirstItemCursor)
	}

	if freshCount == freshness.Unknown {
		items, err := c.src.FromCache(ctx, req.Cursor, req.PageSize)
		if err != nil {
			return Page[V]{}, &Error{Kind: KindCacheRead, Op: "get cached page", Err: err}
		}
		c.log.WithContext(ctx).Infof("freshness unknown, served %d cached photos", len(items))
		return Page[V]{Items: c.src.ToView(items), EndOfFeed: len(items) < req.PageSize}, nil
	}

	var (
		raw []I
		err error
	)
	switch {
	case freshCount == 0:
		cached, cacheErr := c.src.FromCache(ctx, req.Cursor, req.PageSize)
		if cacheErr != nil {
			c.log.WithContext(ctx).Warnw("msg", "cache read failed, falling back to remote", "error", cacheErr)
		} else if len(cached) == req.PageSize {
			return Page[V]{Items: c.src.ToView(cached)}, nil
		}
		raw, err = c.remotePage(ctx, req.Owner, req.Cursor, req.PageSize)
	case freshCount <= req.PageSize:
		raw, err = c.splice(ctx, req, freshCount)
	default:
		c.log.WithContext(ctx).Infof("%d fresh photos exceed page size %d, clearing cache", freshCount, req.PageSize)
		if err := c.src.ClearCache(ctx); err != nil {
			return Page[V]{}, &Error{Kind: KindCacheWrite, Op: "clear cache", Err: err}
		}
		raw, err = c.remotePage(ctx, req.Owner, req.Cursor, req.PageSize)
	}
	if err != nil {
		return Page[V]{}, err
	}

	if len(raw) == 0 {
		return Page[V]{EndOfFeed: true}, nil
	}
	if err := c.src.CachePage(ctx, raw); err != nil {
		return Page[V]{}, &Error{Kind: KindCacheWrite, Op: "cache page", Err: err}
	}
	return Page[V]{Items: c.src.ToView(raw), EndOfFeed: len(raw) < req.PageSize}, nil
}

func (c *Coordinator[I, V]) remotePage(ctx context.Context, owner uuid.UUID, cursor model.Cursor, limit int) ([]I, error) {
	items, err := c.src.RemotePage(ctx, owner, cursor, limit)
	if err != nil {
		return nil, &Error{Kind: KindRemote, Op: "get remote page", Err: err}
	}
	return items, nil
}

// splice fetches the freshCount newest photos and the next page concurrently
// and returns them newest first.
func (c *Coordinator[I, V]) splice(ctx context.Context, req Request, freshCount int) ([]I, error) {
	var (
		wg                sync.WaitGroup
		fresh, next       []I
		freshErr, nextErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		fresh, freshErr = c.remotePage(ctx, req.Owner, model.CursorOf(c.clock.Now()), freshCount)
	}()
	go func() {
		defer wg.Done()
		next, nextErr = c.remotePage(ctx, req.Owner, req.Cursor, req.PageSize)
	}()
	wg.Wait()

	if err := errors.Join(freshErr, nextErr); err != nil {
		return nil, err
	}
	c.log.WithContext(ctx).Debugf("spliced %d fresh photos ahead of %d", len(fresh), len(next))
	out := make([]I, 0, len(fresh)+len(next))
	out = append(out, fresh...)
	return append(out, next...), nil
}

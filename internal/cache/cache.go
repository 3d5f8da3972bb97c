// Package cache is the per-feed local photo cache.
//
// Rows older than the feed's lifetime are hidden from readers as soon as they
// expire; the janitor deletes them later.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/bryan-buckman/photofeed/internal/clock"
	"github.com/bryan-buckman/photofeed/internal/database"
	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/go-kratos/kratos/v2/log"
)

// LocalCache stores one feed's photos in the shared store.
type LocalCache struct {
	store       database.Store
	feed        model.FeedType
	maxLifetime time.Duration
	clock       clock.Clock
	log         *log.Helper
}

// New creates the cache for feed. Rows cached more than maxLifetime ago are invisible.
func New(store database.Store, feed model.FeedType, maxLifetime time.Duration, clk clock.Clock, logger log.Logger) *LocalCache {
	return &LocalCache{
		store:       store,
		feed:        feed,
		maxLifetime: maxLifetime,
		clock:       clk,
		log:         log.NewHelper(log.With(logger, "module", "cache", "feed", string(feed))),
	}
}

// Feed returns the feed type this cache holds.
func (c *LocalCache) Feed() model.FeedType {
	return c.feed
}

// MaxLifetime returns how long a row stays visible after it is cached.
func (c *LocalCache) MaxLifetime() time.Duration {
	return c.maxLifetime
}

// Upsert stores one photo.
func (c *LocalCache) Upsert(ctx context.Context, p model.Photo) error {
	return c.UpsertMany(ctx, []model.Photo{p})
}

// UpsertMany stores photos atomically, stamping each with the current time.
// Photos already cached are replaced.
func (c *LocalCache) UpsertMany(ctx context.Context, photos []model.Photo) error {
	if len(photos) == 0 {
		return nil
	}
	now := c.clock.Now()
	rows := make([]model.Photo, len(photos))
	for i, p := range photos {
		p.FeedType = c.feed
		p.CachedAt = now
		rows[i] = p
	}
	if err := c.store.UpsertCached(ctx, c.feed, rows); err != nil {
		c.log.WithContext(ctx).Errorw("msg", "cache upsert failed", "count", len(rows), "error", err)
		return fmt.Errorf("upsert %d %s photos: %w", len(rows), c.feed, err)
	}
	return nil
}

// GetPage returns up to limit visible photos uploaded before cursor, newest first.
func (c *LocalCache) GetPage(ctx context.Context, cursor model.Cursor, limit int) ([]model.Photo, error) {
	if limit <= 0 {
		return nil, nil
	}
	photos, err := c.store.GetCachedPage(ctx, c.feed, cursor, c.visibleSince(), limit)
	if err != nil {
		return nil, fmt.Errorf("get %s cache page: %w", c.feed, err)
	}
	return photos, nil
}

// Count returns the number of visible photos.
func (c *LocalCache) Count(ctx context.Context) (int, error) {
	n, err := c.store.CountCached(ctx, c.feed, c.visibleSince())
	if err != nil {
		return 0, fmt.Errorf("count %s cache: %w", c.feed, err)
	}
	return n, nil
}

// Contains reports whether the photo id has a cache row, visible or not.
func (c *LocalCache) Contains(ctx context.Context, id int64) (bool, error) {
	ok, err := c.store.CachedExists(ctx, c.feed, id)
	if err != nil {
		return false, fmt.Errorf("lookup %s photo %d: %w", c.feed, id, err)
	}
	return ok, nil
}

// DeleteOlderThan removes rows cached before t.
func (c *LocalCache) DeleteOlderThan(ctx context.Context, t time.Time) (int64, error) {
	n, err := c.store.DeleteCachedBefore(ctx, c.feed, t)
	if err != nil {
		return 0, fmt.Errorf("delete %s rows cached before %s: %w", c.feed, t.Format(time.RFC3339), err)
	}
	return n, nil
}

// DeleteExpired removes every row past the feed's lifetime.
func (c *LocalCache) DeleteExpired(ctx context.Context) (int64, error) {
	return c.DeleteOlderThan(ctx, c.visibleSince())
}

// DeleteAll empties the cache.
func (c *LocalCache) DeleteAll(ctx context.Context) (int64, error) {
	n, err := c.store.DeleteAllCached(ctx, c.feed)
	if err != nil {
		return 0, fmt.Errorf("clear %s cache: %w", c.feed, err)
	}
	c.log.WithContext(ctx).Infof("cleared %d cached photos", n)
	return n, nil
}

// DeleteByName removes a photo taken down by moderation.
func (c *LocalCache) DeleteByName(ctx context.Context, name string) (bool, error) {
	n, err := c.store.DeleteCachedByName(ctx, c.feed, name)
	if err != nil {
		return false, fmt.Errorf("delete %s photo %q: %w", c.feed, name, err)
	}
	return n > 0, nil
}

func (c *LocalCache) visibleSince() time.Time {
	return c.clock.Now().Add(-c.maxLifetime)
}

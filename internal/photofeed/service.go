// Package photofeed wires the three photo feeds to their caches and the remote.
package photofeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryan-buckman/photofeed/internal/cache"
	"github.com/bryan-buckman/photofeed/internal/clock"
	"github.com/bryan-buckman/photofeed/internal/controller"
	"github.com/bryan-buckman/photofeed/internal/database"
	"github.com/bryan-buckman/photofeed/internal/feedsync"
	"github.com/bryan-buckman/photofeed/internal/freshness"
	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/bryan-buckman/photofeed/internal/remote"
	"github.com/dustin/go-humanize"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// Coordinator is the coordinator type for every photo feed.
type Coordinator = feedsync.Coordinator[model.Photo, model.PhotoView]

// Options holds the tunables of a Service.
type Options struct {
	ProbeInterval time.Duration
	// Lifetimes is how long cached rows stay visible, per feed.
	Lifetimes map[model.FeedType]time.Duration
}

// DefaultLifetimes are the cache lifetimes used when Options leaves a feed out.
var DefaultLifetimes = map[model.FeedType]time.Duration{
	model.FeedUploaded: 30 * time.Minute,
	model.FeedReceived: time.Hour,
	model.FeedGallery:  3 * time.Hour,
}

// Service owns one cache and one coordinator per feed. All feeds share a probe.
type Service struct {
	clock  clock.Clock
	probe  *freshness.Probe
	caches map[model.FeedType]*cache.LocalCache
	coords map[model.FeedType]*Coordinator
	logger log.Logger
	log    *log.Helper
}

// New creates the service. The store holds the local caches.
func New(store database.Store, src remote.Source, opts Options, clk clock.Clock, logger log.Logger) *Service {
	s := &Service{
		clock:  clk,
		probe:  freshness.New(src, opts.ProbeInterval, clk, logger),
		caches: make(map[model.FeedType]*cache.LocalCache, len(model.FeedTypes)),
		coords: make(map[model.FeedType]*Coordinator, len(model.FeedTypes)),
		logger: logger,
		log:    log.NewHelper(log.With(logger, "module", "photofeed")),
	}
	for _, feed := range model.FeedTypes {
		lifetime, ok := opts.Lifetimes[feed]
		if !ok {
			lifetime = DefaultLifetimes[feed]
		}
		c := cache.New(store, feed, lifetime, clk, logger)
		s.caches[feed] = c
		s.coords[feed] = feedsync.New(feed, s.source(feed, c, src), s.probe, clk, logger)
	}
	return s
}

func (s *Service) source(feed model.FeedType, c *cache.LocalCache, src remote.Source) feedsync.Source[model.Photo, model.PhotoView] {
	return feedsync.Source[model.Photo, model.PhotoView]{
		FromCache: c.GetPage,
		RemotePage: func(ctx context.Context, owner uuid.UUID, cursor model.Cursor, limit int) ([]model.Photo, error) {
			return src.Page(ctx, feed, owner, cursor, limit)
		},
		ClearCache: func(ctx context.Context) error {
			_, err := c.DeleteAll(ctx)
			return err
		},
		CachePage: c.UpsertMany,
		ToView:    s.Views,
	}
}

// Probe returns the shared freshness probe.
func (s *Service) Probe() *freshness.Probe {
	return s.probe
}

// Coordinator returns the coordinator for feed.
func (s *Service) Coordinator(feed model.FeedType) (*Coordinator, error) {
	c, ok := s.coords[feed]
	if !ok {
		return nil, fmt.Errorf("unknown feed type %q", feed)
	}
	return c, nil
}

// Cache returns the local cache for feed, or nil.
func (s *Service) Cache(feed model.FeedType) *cache.LocalCache {
	return s.caches[feed]
}

// Caches returns every feed's cache in model.FeedTypes order.
func (s *Service) Caches() []*cache.LocalCache {
	out := make([]*cache.LocalCache, 0, len(model.FeedTypes))
	for _, feed := range model.FeedTypes {
		out = append(out, s.caches[feed])
	}
	return out
}

// Controller creates a feed controller for one screen.
func (s *Service) Controller(feed model.FeedType, owner uuid.UUID, pageSize int) (*controller.FeedController[model.PhotoView], error) {
	coord, err := s.Coordinator(feed)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 || pageSize > remote.MaxPageSize {
		return nil, fmt.Errorf("page size must be between 1 and %d, got %d", remote.MaxPageSize, pageSize)
	}
	if feed.RequiresOwner() && owner == uuid.Nil {
		return nil, fmt.Errorf("%s feed requires an owner", feed)
	}
	return controller.New[model.PhotoView](coord, controller.Options[model.PhotoView]{
		Owner:    owner,
		PageSize: pageSize,
		Key:      func(v model.PhotoView) int64 { return v.ID },
		Cursor:   func(v model.PhotoView) model.Cursor { return v.Cursor },
	}, s.logger), nil
}

// Invalidate removes a photo taken down by moderation from every cache.
// It returns the feeds that held it.
func (s *Service) Invalidate(ctx context.Context, name string) ([]model.FeedType, error) {
	var (
		hit  []model.FeedType
		errs []error
	)
	for _, feed := range model.FeedTypes {
		ok, err := s.caches[feed].DeleteByName(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			hit = append(hit, feed)
		}
	}
	if len(hit) > 0 {
		s.log.WithContext(ctx).Infof("invalidated %q in %v", name, hit)
	}
	return hit, errors.Join(errs...)
}

// Views maps photos to what a screen renders.
func (s *Service) Views(photos []model.Photo) []model.PhotoView {
	now := s.clock.Now()
	views := make([]model.PhotoView, len(photos))
	for i, p := range photos {
		views[i] = model.PhotoView{
			ID:         p.ID,
			Name:       p.Name,
			URL:        p.URL,
			UploadedOn: p.UploadedOn,
			Cursor:     p.Cursor(),
			Age:        humanize.RelTime(p.UploadedOn, now, "ago", "from now"),
		}
	}
	return views
}

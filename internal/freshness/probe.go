// Package freshness asks the remote how many photos are newer than the
// newest one a feed has seen, at most once per interval per feed.
package freshness

import (
	"context"
	"sync"
	"time"

	"github.com/bryan-buckman/photofeed/internal/clock"
	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// Unknown is returned when the fresh count could not be determined.
const Unknown = -1

// Counter is the remote "count items after X" endpoint.
type Counter interface {
	FreshCount(ctx context.Context, feed model.FeedType, owner uuid.UUID, after model.Cursor) (int, error)
}

// Probe throttles fresh-count requests per feed type. It is a request
// throttle: the timestamp is taken before the remote call goes out, and no
// response is remembered.
type Probe struct {
	remote   Counter
	interval time.Duration
	clock    clock.Clock
	log      *log.Helper

	mu        sync.Mutex
	lastProbe map[model.FeedType]time.Time
}

// New creates a probe that hits remote at most once per interval for each feed.
func New(remote Counter, interval time.Duration, clk clock.Clock, logger log.Logger) *Probe {
	return &Probe{
		remote:    remote,
		interval:  interval,
		clock:     clk,
		log:       log.NewHelper(log.With(logger, "module", "freshness")),
		lastProbe: make(map[model.FeedType]time.Time),
	}
}

// ShouldProbe reports whether a probe for feed is due at now, and if so
// records now as the feed's last probe time.
func (p *Probe) ShouldProbe(feed model.FeedType, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if last, ok := p.lastProbe[feed]; ok && now.Sub(last) < p.interval {
		return false
	}
	p.lastProbe[feed] = now
	return true
}

// ForceReset makes the next probe for feed go through regardless of the throttle.
func (p *Probe) ForceReset(feed model.FeedType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lastProbe, feed)
}

// FreshCount returns how many photos of feed are newer than after.
// It returns 0 without a remote call for the start-of-feed cursor or while
// throttled, and Unknown when the remote fails.
func (p *Probe) FreshCount(ctx context.Context, feed model.FeedType, owner uuid.UUID, after model.Cursor) int {
	if after.IsStart() {
		return 0
	}
	if !p.ShouldProbe(feed, p.clock.Now()) {
		p.log.WithContext(ctx).Debugf("fresh count for %s throttled", feed)
		return 0
	}
	n, err := p.remote.FreshCount(ctx, feed, owner, after)
	if err != nil {
		p.log.WithContext(ctx).Warnw("msg", "fresh count unavailable", "feed", string(feed), "error", err)
		return Unknown
	}
	if n < 0 {
		return Unknown
	}
	return n
}

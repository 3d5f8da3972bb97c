// Package model defines shared data structures.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FeedType names one of the photo feeds kept in sync with the remote.
type FeedType string

const (
	FeedUploaded FeedType = "uploaded"
	FeedReceived FeedType = "received"
	FeedGallery  FeedType = "gallery"
)

// FeedTypes lists every known feed, in a stable order.
var FeedTypes = []FeedType{FeedUploaded, FeedReceived, FeedGallery}

// ParseFeedType validates a feed name coming from a URL or flag.
func ParseFeedType(s string) (FeedType, error) {
	switch ft := FeedType(s); ft {
	case FeedUploaded, FeedReceived, FeedGallery:
		return ft, nil
	}
	return "", fmt.Errorf("unknown feed type %q", s)
}

// RequiresOwner reports whether pages of this feed are scoped to an owner.
func (f FeedType) RequiresOwner() bool {
	return f == FeedUploaded || f == FeedReceived
}

// Photo is a single item of a feed.
type Photo struct {
	ID         int64 // server-assigned, grows with insertion order
	FeedType   FeedType
	Name       string
	OwnerID    uuid.UUID
	URL        string
	UploadedOn time.Time // remote timestamp, the paging cursor basis
	CachedAt   time.Time // local insertion time, zero for photos off the wire
}

// Cursor returns the paging cursor for the photo.
func (p Photo) Cursor() Cursor {
	return CursorOf(p.UploadedOn)
}

// Cursor is a paging boundary in unix milliseconds.
type Cursor int64

// StartOfFeed means nothing has been delivered yet.
const StartOfFeed Cursor = -1

// CursorOf converts a timestamp into a cursor.
func CursorOf(t time.Time) Cursor {
	return Cursor(t.UnixMilli())
}

// Time returns the cursor as a UTC timestamp.
func (c Cursor) Time() time.Time {
	return time.UnixMilli(int64(c)).UTC()
}

// IsStart reports whether c is the start-of-feed sentinel.
func (c Cursor) IsStart() bool {
	return c == StartOfFeed
}

// PhotoView is what a screen renders for one photo.
type PhotoView struct {
	ID         int64
	Name       string
	URL        string
	UploadedOn time.Time
	Cursor     Cursor
	Age        string
}

// Settings key constants.
const (
	SettingJanitorInterval = "janitor_interval_minutes"
)

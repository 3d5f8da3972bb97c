// Package database provides storage backends for the photo feeds.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/google/uuid"
)

// MinJanitorIntervalMinutes is the floor applied to the persisted janitor interval.
const MinJanitorIntervalMinutes = 1

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations (e.g., PostgreSQL).
	SupportsHighConcurrency() bool

	// Origin photo operations. These back the reference remote API.
	AddPhoto(ctx context.Context, p *model.Photo) (int64, error)
	ListPhotos(ctx context.Context, feed model.FeedType, owner uuid.UUID, before model.Cursor, limit int) ([]model.Photo, error)
	CountPhotosAfter(ctx context.Context, feed model.FeedType, owner uuid.UUID, after model.Cursor) (int, error)
	DeletePhotoByName(ctx context.Context, name string) (int64, error)

	// Cache operations. Rows are keyed by (feed type, photo id).
	// UpsertCached writes the whole batch in one transaction.
	UpsertCached(ctx context.Context, feed model.FeedType, photos []model.Photo) error
	GetCachedPage(ctx context.Context, feed model.FeedType, before model.Cursor, notCachedBefore time.Time, limit int) ([]model.Photo, error)
	CountCached(ctx context.Context, feed model.FeedType, notCachedBefore time.Time) (int, error)
	CachedExists(ctx context.Context, feed model.FeedType, id int64) (bool, error)
	DeleteCachedBefore(ctx context.Context, feed model.FeedType, t time.Time) (int64, error)
	DeleteAllCached(ctx context.Context, feed model.FeedType) (int64, error)
	DeleteCachedByName(ctx context.Context, feed model.FeedType, name string) (int64, error)

	// Settings operations
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	GetJanitorInterval() (int, error)
}

// ownerArg maps the nil owner to SQL NULL so one query serves owned and public feeds.
func ownerArg(owner uuid.UUID) any {
	if owner == uuid.Nil {
		return nil
	}
	return owner.String()
}

// beforeArg maps the start-of-feed sentinel to "no upper bound".
func beforeArg(before model.Cursor) int64 {
	if before.IsStart() {
		return 1<<63 - 1
	}
	return int64(before)
}

func scanPhotos(rows *sql.Rows, cached bool) ([]model.Photo, error) {
	var photos []model.Photo
	for rows.Next() {
		var (
			p          model.Photo
			feed       string
			owner      sql.NullString
			uploadedOn int64
			cachedAt   int64
		)
		dest := []any{&p.ID, &feed, &p.Name, &owner, &p.URL, &uploadedOn}
		if cached {
			dest = append(dest, &cachedAt)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		p.FeedType = model.FeedType(feed)
		if owner.Valid {
			id, err := uuid.Parse(owner.String)
			if err != nil {
				return nil, err
			}
			p.OwnerID = id
		}
		p.UploadedOn = time.UnixMilli(uploadedOn).UTC()
		if cached {
			p.CachedAt = time.UnixMilli(cachedAt).UTC()
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

func clampJanitorInterval(val string, err error) (int, error) {
	if err != nil {
		return 10, nil // default
	}
	var mins int
	if _, err := fmt.Sscanf(val, "%d", &mins); err != nil || mins < MinJanitorIntervalMinutes {
		mins = MinJanitorIntervalMinutes
	}
	return mins, nil
}

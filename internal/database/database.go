// Package database provides SQLite storage for the photo feeds.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

// SupportsHighConcurrency returns false for SQLite due to write locking.
func (db *DB) SupportsHighConcurrency() bool {
	return false
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS photos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_type TEXT NOT NULL,
		name TEXT NOT NULL UNIQUE,
		owner_id TEXT,
		url TEXT NOT NULL DEFAULT '',
		uploaded_on INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_photos_feed_uploaded ON photos(feed_type, uploaded_on DESC);
	CREATE TABLE IF NOT EXISTS cached_photos (
		feed_type TEXT NOT NULL,
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		owner_id TEXT,
		url TEXT NOT NULL DEFAULT '',
		uploaded_on INTEGER NOT NULL,
		cached_at INTEGER NOT NULL,
		PRIMARY KEY (feed_type, id)
	);
	CREATE INDEX IF NOT EXISTS idx_cached_photos_cached_at ON cached_photos(feed_type, cached_at);
	CREATE INDEX IF NOT EXISTS idx_cached_photos_uploaded ON cached_photos(feed_type, uploaded_on DESC);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	-- Default janitor interval (1 minute minimum).
	INSERT OR IGNORE INTO settings (key, value) VALUES ('janitor_interval_minutes', '10');
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Photo Methods ---

// AddPhoto stores a new origin photo. Returns the assigned ID.
func (db *DB) AddPhoto(ctx context.Context, p *model.Photo) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO photos (feed_type, name, owner_id, url, uploaded_on) VALUES (?, ?, ?, ?, ?)",
		string(p.FeedType), p.Name, ownerArg(p.OwnerID), p.URL, p.UploadedOn.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListPhotos returns up to limit origin photos uploaded strictly before the cursor, newest first.
func (db *DB) ListPhotos(ctx context.Context, feed model.FeedType, owner uuid.UUID, before model.Cursor, limit int) ([]model.Photo, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, feed_type, name, owner_id, url, uploaded_on FROM photos
		WHERE feed_type = ? AND (? IS NULL OR owner_id = ?) AND uploaded_on < ?
		ORDER BY uploaded_on DESC, id DESC LIMIT ?`,
		string(feed), ownerArg(owner), ownerArg(owner), beforeArg(before), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPhotos(rows, false)
}

// CountPhotosAfter counts origin photos uploaded strictly after the cursor.
func (db *DB) CountPhotosAfter(ctx context.Context, feed model.FeedType, owner uuid.UUID, after model.Cursor) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM photos
		WHERE feed_type = ? AND (? IS NULL OR owner_id = ?) AND uploaded_on > ?`,
		string(feed), ownerArg(owner), ownerArg(owner), int64(after)).Scan(&n)
	return n, err
}

// DeletePhotoByName removes an origin photo by its file name.
func (db *DB) DeletePhotoByName(ctx context.Context, name string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM photos WHERE name = ?", name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Cache Methods ---

// UpsertCached writes photos into the feed's cache in a single transaction.
// Existing rows with the same id are replaced.
func (db *DB) UpsertCached(ctx context.Context, feed model.FeedType, photos []model.Photo) error {
	if len(photos) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cached_photos (feed_type, id, name, owner_id, url, uploaded_on, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_type, id) DO UPDATE SET
			name = excluded.name, owner_id = excluded.owner_id, url = excluded.url,
			uploaded_on = excluded.uploaded_on, cached_at = excluded.cached_at`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, p := range photos {
		if _, err := stmt.ExecContext(ctx, string(feed), p.ID, p.Name, ownerArg(p.OwnerID), p.URL,
			p.UploadedOn.UnixMilli(), p.CachedAt.UnixMilli()); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert photo %d: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// GetCachedPage returns up to limit cached photos uploaded before the cursor,
// skipping rows cached before notCachedBefore.
func (db *DB) GetCachedPage(ctx context.Context, feed model.FeedType, before model.Cursor, notCachedBefore time.Time, limit int) ([]model.Photo, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, feed_type, name, owner_id, url, uploaded_on, cached_at FROM cached_photos
		WHERE feed_type = ? AND uploaded_on < ? AND cached_at >= ?
		ORDER BY uploaded_on DESC, id DESC LIMIT ?`,
		string(feed), beforeArg(before), notCachedBefore.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPhotos(rows, true)
}

// CountCached counts the feed's cached rows not older than notCachedBefore.
func (db *DB) CountCached(ctx context.Context, feed model.FeedType, notCachedBefore time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cached_photos WHERE feed_type = ? AND cached_at >= ?",
		string(feed), notCachedBefore.UnixMilli()).Scan(&n)
	return n, err
}

// CachedExists reports whether the photo id is cached for the feed.
func (db *DB) CachedExists(ctx context.Context, feed model.FeedType, id int64) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cached_photos WHERE feed_type = ? AND id = ?", string(feed), id).Scan(&n)
	return n > 0, err
}

// DeleteCachedBefore removes the feed's rows cached before t.
func (db *DB) DeleteCachedBefore(ctx context.Context, feed model.FeedType, t time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM cached_photos WHERE feed_type = ? AND cached_at < ?", string(feed), t.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAllCached empties the feed's cache.
func (db *DB) DeleteAllCached(ctx context.Context, feed model.FeedType) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM cached_photos WHERE feed_type = ?", string(feed))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteCachedByName removes a cached photo by file name.
func (db *DB) DeleteCachedByName(ctx context.Context, feed model.FeedType, name string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM cached_photos WHERE feed_type = ? AND name = ?", string(feed), name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Settings Methods ---

// GetSetting retrieves a setting value.
func (db *DB) GetSetting(key string) (string, error) {
	var val string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	return val, err
}

// SetSetting saves a setting.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec("INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?", key, value, value)
	return err
}

// GetJanitorInterval returns the cache janitor interval in minutes, with a minimum of 1.
func (db *DB) GetJanitorInterval() (int, error) {
	return clampJanitorInterval(db.GetSetting(model.SettingJanitorInterval))
}

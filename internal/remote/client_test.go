package remote_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryan-buckman/photofeed/internal/clock"
	"github.com/bryan-buckman/photofeed/internal/database"
	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/bryan-buckman/photofeed/internal/remote"
	"github.com/bryan-buckman/photofeed/internal/server"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var origin = time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)

func newRemote(t *testing.T) (*remote.Client, database.Store) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "origin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := log.NewStdLogger(io.Discard)
	ts := httptest.NewServer(server.New(db, clock.NewManual(origin.Add(time.Hour)), logger))
	t.Cleanup(ts.Close)

	c, err := remote.NewClient(ts.URL+"/", ts.Client(), logger)
	require.NoError(t, err)
	return c, db
}

func seed(t *testing.T, db database.Store, feed model.FeedType, owner uuid.UUID, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := db.AddPhoto(context.Background(), &model.Photo{
			FeedType:   feed,
			Name:       uuid.NewString() + ".jpg",
			OwnerID:    owner,
			URL:        "https://img.example/photo.jpg",
			UploadedOn: origin.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
}

func TestPageRoundTripsPhotos(t *testing.T) {
	ctx := context.Background()
	c, db := newRemote(t)
	owner := uuid.New()
	seed(t, db, model.FeedReceived, owner, 5)

	page, err := c.Page(ctx, model.FeedReceived, owner, model.CursorOf(origin.Add(time.Hour)), 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Equal(t, origin.Add(5*time.Second), page[0].UploadedOn)
	require.Equal(t, owner, page[0].OwnerID)
	require.Equal(t, model.FeedReceived, page[0].FeedType)
	require.Equal(t, "https://img.example/photo.jpg", page[0].URL)
	require.Greater(t, page[0].ID, page[1].ID)

	rest, err := c.Page(ctx, model.FeedReceived, owner, page[2].Cursor(), 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Equal(t, origin.Add(1*time.Second), rest[1].UploadedOn)
}

func TestFreshCount(t *testing.T) {
	c, db := newRemote(t)
	seed(t, db, model.FeedGallery, uuid.Nil, 4)

	n, err := c.FreshCount(context.Background(), model.FeedGallery, uuid.Nil, model.CursorOf(origin.Add(2*time.Second)))
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestStatusErrors(t *testing.T) {
	c, _ := newRemote(t)

	_, err := c.Page(context.Background(), model.FeedUploaded, uuid.Nil, model.StartOfFeed, 10)
	var statusErr *remote.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadRequest, statusErr.Status)
}

func TestUnreachableRemote(t *testing.T) {
	c, err := remote.NewClient("http://127.0.0.1:1", &http.Client{Timeout: time.Second}, log.NewStdLogger(io.Discard))
	require.NoError(t, err)

	_, err = c.FreshCount(context.Background(), model.FeedGallery, uuid.Nil, model.CursorOf(origin))
	require.Error(t, err)
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	_, err := remote.NewClient("/api", nil, log.NewStdLogger(io.Discard))
	require.Error(t, err)
}

func TestMalformedEntryFailsPage(t *testing.T) {
	const doc = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Gallery photos</title>
  <id>urn:photofeed:gallery</id>
  <updated>2024-08-01T10:00:00Z</updated>
  <entry>
    <title>good.jpg</title>
    <id>urn:photofeed:gallery:2:1722506402000</id>
    <updated>2024-08-01T10:00:02Z</updated>
  </entry>
  <entry>
    <title>bad.jpg</title>
    <id>tag:elsewhere,2024:1</id>
    <updated>2024-08-01T10:00:01Z</updated>
  </entry>
</feed>`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		io.WriteString(w, doc)
	}))
	defer ts.Close()

	c, err := remote.NewClient(ts.URL, ts.Client(), log.NewStdLogger(io.Discard))
	require.NoError(t, err)

	page, err := c.Page(context.Background(), model.FeedGallery, uuid.Nil, model.StartOfFeed, 2)
	require.Error(t, err)
	require.Nil(t, page)
}

func TestPageKeepsMillisecondsOfUploadTime(t *testing.T) {
	ctx := context.Background()
	c, db := newRemote(t)
	for i := 0; i < 3; i++ {
		_, err := db.AddPhoto(ctx, &model.Photo{
			FeedType:   model.FeedGallery,
			Name:       uuid.NewString() + ".jpg",
			UploadedOn: origin.Add(time.Duration(i) * 300 * time.Millisecond),
		})
		require.NoError(t, err)
	}

	var got []time.Time
	cursor := model.StartOfFeed
	for {
		page, err := c.Page(ctx, model.FeedGallery, uuid.Nil, cursor, 1)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		got = append(got, page[0].UploadedOn)
		cursor = page[0].Cursor()
	}
	require.Equal(t, []time.Time{
		origin.Add(600 * time.Millisecond),
		origin.Add(300 * time.Millisecond),
		origin,
	}, got)
}

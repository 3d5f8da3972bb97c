//go:build integration

package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()
	dsnFor := func(host string, port nat.Port) string {
		return fmt.Sprintf("postgres://postgres:postgres@%s:%s/photofeed?sslmode=disable", host, port.Port())
	}
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "photofeed",
		},
		WaitingFor: wait.ForSQL("5432/tcp", "postgres", dsnFor).WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		t.Skip("docker unavailable")
	}
	t.Cleanup(func() {
		termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(termCtx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	store, err := NewPostgres(dsnFor(host, port))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t)
	owner := uuid.New()

	_, err := db.AddPhoto(ctx, &model.Photo{FeedType: model.FeedReceived, Name: "a.jpg", OwnerID: owner, UploadedOn: base})
	require.NoError(t, err)
	origin, err := db.ListPhotos(ctx, model.FeedReceived, owner, model.StartOfFeed, 10)
	require.NoError(t, err)
	require.Len(t, origin, 1)
	public, err := db.ListPhotos(ctx, model.FeedReceived, uuid.Nil, model.StartOfFeed, 10)
	require.NoError(t, err)
	require.Len(t, public, 1)

	p := origin[0]
	p.CachedAt = base
	require.NoError(t, db.UpsertCached(ctx, model.FeedReceived, []model.Photo{p}))
	require.NoError(t, db.UpsertCached(ctx, model.FeedReceived, []model.Photo{p}))

	exists, err := db.CachedExists(ctx, model.FeedReceived, p.ID)
	require.NoError(t, err)
	require.True(t, exists)

	page, err := db.GetCachedPage(ctx, model.FeedReceived, model.CursorOf(base.Add(time.Second)), base.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, owner, page[0].OwnerID)

	deleted, err := db.DeleteCachedByName(ctx, model.FeedReceived, "a.jpg")
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	mins, err := db.GetJanitorInterval()
	require.NoError(t, err)
	require.Equal(t, 10, mins)
}

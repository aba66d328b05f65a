//go:build integration

package mariadb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/photo-moments/internal/media"
)

const photosSchema = `
CREATE TABLE photos (
	id INT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	photo_uid VARBINARY(42) NOT NULL UNIQUE,
	photo_type VARBINARY(8) DEFAULT 'image',
	taken_at DATETIME NULL,
	photo_lat FLOAT DEFAULT 0,
	photo_lng FLOAT DEFAULT 0,
	deleted_at DATETIME NULL
)`

func setupTestContainer(t *testing.T) *Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mariadb:11",
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MARIADB_ROOT_PASSWORD": "test",
				"MARIADB_DATABASE":      "photoprism",
			},
			WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)

	var pool *Pool
	require.Eventually(t, func() bool {
		pool, err = NewPool(ctx, fmt.Sprintf("root:test@tcp(%s:%s)/photoprism", host, port.Port()))
		return err == nil
	}, 60*time.Second, time.Second)
	t.Cleanup(func() { _ = pool.Close() })

	_, err = pool.db.ExecContext(ctx, photosSchema)
	require.NoError(t, err)
	return pool
}

func TestMediaSource(t *testing.T) {
	pool := setupTestContainer(t)
	ctx := context.Background()

	_, err := pool.db.ExecContext(ctx, `INSERT INTO photos (photo_uid, photo_type, taken_at, photo_lat, photo_lng, deleted_at) VALUES
		('pa', 'image', '2026-10-19 09:00:00', 50.08, 14.42, NULL),
		('pb', 'video', '2026-10-19 10:00:00', 0, 0, NULL),
		('pc', 'image', NULL, 0, 0, NULL),
		('pd', 'image', '2026-10-19 11:00:00', 0, 0, '2026-10-20 00:00:00')`)
	require.NoError(t, err)

	src := NewMediaSource(pool)

	items, err := src.ListMedia(ctx, media.TimeRange{}, nil, media.SortNewestFirst)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "pb", items[0].LocationURI)
	assert.Equal(t, media.KindVideo, items[0].Kind)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC).UnixMilli(), items[1].CapturedAt)

	images, err := src.ListMedia(ctx, media.TimeRange{}, media.KindFilter{media.KindImage}, media.SortOldestFirst)
	require.NoError(t, err)
	assert.Len(t, images, 2)

	loc, err := src.ResolveLocation(ctx, "pa")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.InDelta(t, 50.08, loc.Latitude, 1e-4)

	loc, err = src.ResolveLocation(ctx, "pb")
	require.NoError(t, err)
	assert.Nil(t, loc)

	_, err = src.ResolveLocation(ctx, "missing")
	assert.Error(t, err)
}

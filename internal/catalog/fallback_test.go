package catalog

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidshare/internal/logging"
	"vidshare/internal/models"
)

// downCatalog wraps a memCatalog and fails every call while down is set.
type downCatalog struct {
	*memCatalog
	down atomic.Bool
}

func (d *downCatalog) err() error {
	if d.down.Load() {
		return fmt.Errorf("%w: connection refused", ErrStorageUnavailable)
	}
	return nil
}

func (d *downCatalog) Create(ctx context.Context, f *models.UploadedFile) error {
	if err := d.err(); err != nil {
		return err
	}
	return d.memCatalog.Create(ctx, f)
}

func (d *downCatalog) Get(ctx context.Context, name string) (*models.UploadedFile, error) {
	if err := d.err(); err != nil {
		return nil, err
	}
	return d.memCatalog.Get(ctx, name)
}

func (d *downCatalog) List(ctx context.Context) ([]*models.UploadedFile, error) {
	if err := d.err(); err != nil {
		return nil, err
	}
	return d.memCatalog.List(ctx)
}

func (d *downCatalog) Delete(ctx context.Context, name string) error {
	if err := d.err(); err != nil {
		return err
	}
	return d.memCatalog.Delete(ctx, name)
}

func (d *downCatalog) Replace(ctx context.Context, f *models.UploadedFile) error {
	if err := d.err(); err != nil {
		return err
	}
	return d.memCatalog.Replace(ctx, f)
}

func TestFallback_UsesPrimaryWhileHealthy(t *testing.T) {
	ctx := context.Background()
	dir, _ := newDirCatalog(t)
	primary := &downCatalog{memCatalog: newMemCatalog("1_a.mp4")}
	c := WithFallback(primary, dir, logging.Discard())

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.ErrorIs(t, c.Create(ctx, &models.UploadedFile{Filename: "1_a.mp4"}), ErrDuplicateKey)
	_, err = c.Get(ctx, "missing.mp4")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, "sql", Backend(WithFallback(&SQLCatalog{}, dir, logging.Discard())))
}

func TestFallback_SwitchesToDirectoryWhenDown(t *testing.T) {
	ctx := context.Background()
	dir, s := newDirCatalog(t)
	writeFile(t, s, "1_a.mp4", 10, time.Now())
	primary := &downCatalog{memCatalog: newMemCatalog()}
	primary.down.Store(true)
	c := WithFallback(primary, dir, logging.Discard())

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "1_a.mp4", list[0].Filename)

	writeFile(t, s, "2_b.mp4", 20, time.Now())
	require.NoError(t, c.Create(ctx, &models.UploadedFile{Filename: "2_b.mp4", OriginalName: "b.mp4", Size: 20}))

	got, err := c.Get(ctx, "2_b.mp4")
	require.NoError(t, err)
	require.Equal(t, "b.mp4", got.OriginalName)

	require.NoError(t, c.Replace(ctx, &models.UploadedFile{Filename: "2_b.mp4", OriginalName: "b2.mp4", Size: 20}))
	got, err = c.Get(ctx, "2_b.mp4")
	require.NoError(t, err)
	require.Equal(t, "b2.mp4", got.OriginalName)

	require.NoError(t, s.Remove("2_b.mp4"))
	require.NoError(t, c.Delete(ctx, "2_b.mp4"))
	require.NoError(t, c.Close())

	primary.down.Store(false)
	list, err = c.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list, "primary is authoritative again once reachable")
}

package catalog

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidshare/internal/models"
	"vidshare/internal/storage"
)

func newDirCatalog(t *testing.T) (*DirCatalog, *storage.Store) {
	t.Helper()
	s, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	accept := func(name string) bool { return path.Ext(name) == ".mp4" }
	return NewDirCatalog(s, accept), s
}

func writeFile(t *testing.T, s *storage.Store, name string, size int, mtime time.Time) {
	t.Helper()
	p := filepath.Join(s.Dir(), name)
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(p, mtime, mtime))
}

func TestDirList_DerivesEntriesNewestFirst(t *testing.T) {
	c, s := newDirCatalog(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	writeFile(t, s, "1_old.mp4", 10, base)
	writeFile(t, s, "2_new.mp4", 20, base.Add(time.Hour))
	writeFile(t, s, "notes.txt", 5, base.Add(2*time.Hour))

	list, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.Equal(t, "2_new.mp4", list[0].Filename)
	require.Equal(t, "new.mp4", list[0].OriginalName)
	require.Equal(t, int64(20), list[0].Size)
	require.Equal(t, "video/mp4", list[0].MimeType)
	require.True(t, base.Add(time.Hour).Equal(list[0].CreatedAt))

	require.Equal(t, "1_old.mp4", list[1].Filename)
}

func TestDirCreate_KeepsMetadataAndRejectsDuplicates(t *testing.T) {
	c, s := newDirCatalog(t)
	ctx := context.Background()
	writeFile(t, s, "5_My_clip.mp4", 3, time.Now())

	entry := &models.UploadedFile{
		Filename:     "5_My_clip.mp4",
		OriginalName: "My clip.mp4",
		Size:         3,
		MimeType:     "video/mp4",
		Checksum:     "deadbeef",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, c.Create(ctx, entry))
	require.ErrorIs(t, c.Create(ctx, entry), ErrDuplicateKey)

	got, err := c.Get(ctx, "5_My_clip.mp4")
	require.NoError(t, err)
	require.Equal(t, "My clip.mp4", got.OriginalName)
	require.Equal(t, "deadbeef", got.Checksum)
}

func TestDirReplace_KeepsFile(t *testing.T) {
	c, s := newDirCatalog(t)
	ctx := context.Background()
	writeFile(t, s, "7_a.mp4", 3, time.Now())

	require.NoError(t, c.Create(ctx, &models.UploadedFile{Filename: "7_a.mp4", OriginalName: "old.mp4", Checksum: "1"}))
	require.NoError(t, c.Replace(ctx, &models.UploadedFile{Filename: "7_a.mp4", OriginalName: "new.mp4", Checksum: "2"}))

	got, err := c.Get(ctx, "7_a.mp4")
	require.NoError(t, err)
	require.Equal(t, "new.mp4", got.OriginalName)
	require.Equal(t, "2", got.Checksum)
	_, err = os.Stat(filepath.Join(s.Dir(), "7_a.mp4"))
	require.NoError(t, err)

	err = c.Replace(ctx, &models.UploadedFile{Filename: "8_missing.mp4"})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDirCreate_RequiresFile(t *testing.T) {
	c, _ := newDirCatalog(t)
	err := c.Create(context.Background(), &models.UploadedFile{Filename: "1_missing.mp4"})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDirDelete(t *testing.T) {
	c, s := newDirCatalog(t)
	ctx := context.Background()
	writeFile(t, s, "1_a.mp4", 1, time.Now())

	require.NoError(t, c.Delete(ctx, "1_a.mp4"))
	_, err := os.Stat(filepath.Join(s.Dir(), "1_a.mp4"))
	require.True(t, os.IsNotExist(err))

	require.ErrorIs(t, c.Delete(ctx, "1_a.mp4"), ErrNotFound)
	require.ErrorIs(t, c.Delete(ctx, "../etc/passwd"), ErrNotFound)
}

func TestDirGet_NotFound(t *testing.T) {
	c, s := newDirCatalog(t)
	writeFile(t, s, "1_a.txt", 1, time.Now())

	_, err := c.Get(context.Background(), "nope.mp4")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get(context.Background(), "1_a.txt")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDirList_ForgetsRemovedFiles(t *testing.T) {
	c, s := newDirCatalog(t)
	ctx := context.Background()
	writeFile(t, s, "1_a.mp4", 1, time.Now())
	require.NoError(t, c.Create(ctx, &models.UploadedFile{Filename: "1_a.mp4", Size: 1}))

	require.NoError(t, os.Remove(filepath.Join(s.Dir(), "1_a.mp4")))
	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	// the name is free again once the file is gone
	writeFile(t, s, "1_a.mp4", 1, time.Now())
	require.NoError(t, c.Create(ctx, &models.UploadedFile{Filename: "1_a.mp4", Size: 1}))
}

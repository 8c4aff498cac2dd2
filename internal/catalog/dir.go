package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"vidshare/internal/models"
	"vidshare/internal/storage"
)

// DirCatalog derives entries from the upload directory. Files carry no
// original name on disk, so one is synthesized from the stored filename;
// entries created through this instance keep their full metadata in memory
// until the process exits.
type DirCatalog struct {
	store  *storage.Store
	accept func(name string) bool

	mu    sync.RWMutex
	known map[string]*models.UploadedFile
}

func NewDirCatalog(store *storage.Store, accept func(name string) bool) *DirCatalog {
	if accept == nil {
		accept = func(string) bool { return true }
	}
	return &DirCatalog{
		store:  store,
		accept: accept,
		known:  make(map[string]*models.UploadedFile),
	}
}

func (c *DirCatalog) Create(_ context.Context, f *models.UploadedFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.known[f.Filename]; ok {
		return ErrDuplicateKey
	}
	if _, err := c.store.Stat(f.Filename); err != nil {
		return fmt.Errorf("index %s: %w", f.Filename, err)
	}
	entry := *f
	c.known[f.Filename] = &entry
	return nil
}

// Replace swaps the remembered metadata for a file that is on disk.
func (c *DirCatalog) Replace(_ context.Context, f *models.UploadedFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.store.Stat(f.Filename); err != nil {
		return fmt.Errorf("index %s: %w", f.Filename, err)
	}
	entry := *f
	c.known[f.Filename] = &entry
	return nil
}

func (c *DirCatalog) Get(_ context.Context, filename string) (*models.UploadedFile, error) {
	info, err := c.store.Stat(filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !c.accept(filename) {
		return nil, ErrNotFound
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entryFor(info), nil
}

func (c *DirCatalog) List(_ context.Context) ([]*models.UploadedFile, error) {
	files, err := c.store.Scan()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	present := make(map[string]struct{}, len(files))
	result := make([]*models.UploadedFile, 0, len(files))
	for _, info := range files {
		if !c.accept(info.Name()) {
			continue
		}
		present[info.Name()] = struct{}{}
		result = append(result, c.entryFor(info))
	}
	for name := range c.known {
		if _, ok := present[name]; !ok {
			delete(c.known, name)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].Filename > result[j].Filename
	})
	return result, nil
}

// Delete removes the file itself, since the directory is the index.
func (c *DirCatalog) Delete(_ context.Context, filename string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, wasKnown := c.known[filename]
	delete(c.known, filename)

	if err := c.store.Remove(filename); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			if wasKnown {
				return nil
			}
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (c *DirCatalog) Close() error { return nil }

// entryFor must be called with c.mu held.
func (c *DirCatalog) entryFor(info fs.FileInfo) *models.UploadedFile {
	if k, ok := c.known[info.Name()]; ok {
		entry := *k
		return &entry
	}
	return &models.UploadedFile{
		Filename:     info.Name(),
		OriginalName: storage.DisplayName(info.Name()),
		Size:         info.Size(),
		MimeType:     storage.ContentType(info.Name()),
		CreatedAt:    info.ModTime().UTC(),
	}
}

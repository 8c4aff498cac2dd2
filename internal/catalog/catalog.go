// Package catalog indexes uploaded files. A SQL database is authoritative when
// configured and reachable; otherwise the index is derived from the upload
// directory. Both backends satisfy Catalog and are chosen once by Open.
package catalog

import (
	"context"
	"errors"

	"vidshare/internal/logging"
	"vidshare/internal/models"
	"vidshare/internal/storage"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateKey       = errors.New("duplicate filename")
	ErrStorageUnavailable = errors.New("catalog store unavailable")
)

type Catalog interface {
	// Create inserts one entry. ErrDuplicateKey when the filename is taken.
	Create(ctx context.Context, f *models.UploadedFile) error
	// Get returns one entry or ErrNotFound.
	Get(ctx context.Context, filename string) (*models.UploadedFile, error)
	// List returns all entries, newest first.
	List(ctx context.Context) ([]*models.UploadedFile, error)
	// Replace overwrites the entry for f.Filename, inserting it if absent.
	// Only the index changes; the stored file is left alone.
	Replace(ctx context.Context, f *models.UploadedFile) error
	// Delete removes one entry or returns ErrNotFound.
	Delete(ctx context.Context, filename string) error
	Close() error
}

type Options struct {
	// DSN selects the durable backend. Empty means filesystem only.
	DSN   string
	Store *storage.Store
	// Accept filters which files in the upload directory are videos. Nil
	// accepts every regular file.
	Accept func(name string) bool
}

// Open picks the backend. An unreachable database downgrades to the
// filesystem catalog; any other database error is returned.
func Open(ctx context.Context, opts Options, log logging.Logger) (Catalog, error) {
	dir := NewDirCatalog(opts.Store, opts.Accept)
	if opts.DSN == "" {
		log.Info(ctx, "no durable store configured, indexing upload directory", "dir", opts.Store.Dir())
		return dir, nil
	}

	c, err := OpenSQL(ctx, opts.DSN, log)
	if err != nil {
		if errors.Is(err, ErrStorageUnavailable) {
			log.Warn(ctx, "durable store unreachable, falling back to upload directory", "error", err)
			return dir, nil
		}
		return nil, err
	}
	log.Info(ctx, "catalog connected", "driver", c.driver)
	return WithFallback(c, dir, log), nil
}

// Backend names the implementation behind c, for health output.
func Backend(c Catalog) string {
	switch c := c.(type) {
	case *Fallback:
		return Backend(c.primary)
	case *SQLCatalog:
		return "sql"
	case *DirCatalog:
		return "dir"
	default:
		return "unknown"
	}
}

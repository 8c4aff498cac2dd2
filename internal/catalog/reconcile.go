package catalog

import (
	"context"
	"errors"
	"fmt"

	"vidshare/internal/logging"
	"vidshare/internal/models"
	"vidshare/internal/storage"
)

type ReconcileReport struct {
	Indexed int // files on disk that had no entry
	Pruned  int // entries whose file was gone
}

// Reconcile brings the catalog back in line with the upload directory. Files
// stored while the durable store was down get an entry; entries for files
// that no longer exist are removed. Against a DirCatalog it finds nothing to
// do.
func Reconcile(ctx context.Context, c Catalog, store *storage.Store, accept func(string) bool, log logging.Logger) (ReconcileReport, error) {
	var report ReconcileReport

	entries, err := c.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list catalog: %w", err)
	}
	files, err := store.Scan()
	if err != nil {
		return report, err
	}

	indexed := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		indexed[e.Filename] = struct{}{}
	}
	onDisk := make(map[string]struct{}, len(files))

	for _, info := range files {
		name := info.Name()
		onDisk[name] = struct{}{}
		if _, ok := indexed[name]; ok {
			continue
		}
		if accept != nil && !accept(name) {
			continue
		}

		sum, err := store.Checksum(name)
		if err != nil {
			log.Warn(ctx, "reconcile: checksum failed", "filename", name, "error", err)
		}
		err = c.Create(ctx, &models.UploadedFile{
			Filename:     name,
			OriginalName: storage.DisplayName(name),
			Size:         info.Size(),
			MimeType:     storage.ContentType(name),
			Checksum:     sum,
			CreatedAt:    info.ModTime().UTC(),
		})
		switch {
		case err == nil:
			report.Indexed++
		case errors.Is(err, ErrDuplicateKey):
		default:
			return report, fmt.Errorf("index %s: %w", name, err)
		}
	}

	for _, e := range entries {
		if _, ok := onDisk[e.Filename]; ok {
			continue
		}
		if err := c.Delete(ctx, e.Filename); err != nil && !errors.Is(err, ErrNotFound) {
			return report, fmt.Errorf("prune %s: %w", e.Filename, err)
		}
		report.Pruned++
	}

	if report.Indexed > 0 || report.Pruned > 0 {
		log.Info(ctx, "catalog reconciled", "indexed", report.Indexed, "pruned", report.Pruned)
	}
	return report, nil
}

package catalog

import (
	"context"
	"errors"

	"vidshare/internal/logging"
	"vidshare/internal/models"
)

// Fallback serves from primary and switches to secondary for any call that
// fails with ErrStorageUnavailable. Entries written to secondary during an
// outage reach primary through Reconcile on the next start.
type Fallback struct {
	primary   Catalog
	secondary Catalog
	log       logging.Logger
}

func WithFallback(primary, secondary Catalog, log logging.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, log: log}
}

func (f *Fallback) Create(ctx context.Context, e *models.UploadedFile) error {
	err := f.primary.Create(ctx, e)
	if f.degraded(ctx, "create", err) {
		return f.secondary.Create(ctx, e)
	}
	return err
}

func (f *Fallback) Get(ctx context.Context, filename string) (*models.UploadedFile, error) {
	e, err := f.primary.Get(ctx, filename)
	if f.degraded(ctx, "get", err) {
		return f.secondary.Get(ctx, filename)
	}
	return e, err
}

func (f *Fallback) List(ctx context.Context) ([]*models.UploadedFile, error) {
	list, err := f.primary.List(ctx)
	if f.degraded(ctx, "list", err) {
		return f.secondary.List(ctx)
	}
	return list, err
}

func (f *Fallback) Replace(ctx context.Context, e *models.UploadedFile) error {
	err := f.primary.Replace(ctx, e)
	if f.degraded(ctx, "replace", err) {
		return f.secondary.Replace(ctx, e)
	}
	return err
}

func (f *Fallback) Delete(ctx context.Context, filename string) error {
	err := f.primary.Delete(ctx, filename)
	if f.degraded(ctx, "delete", err) {
		return f.secondary.Delete(ctx, filename)
	}
	return err
}

func (f *Fallback) Close() error {
	return errors.Join(f.primary.Close(), f.secondary.Close())
}

func (f *Fallback) degraded(ctx context.Context, op string, err error) bool {
	if !errors.Is(err, ErrStorageUnavailable) {
		return false
	}
	f.log.Warn(ctx, "durable store unavailable, serving from upload directory", "op", op, "error", err)
	return true
}

// Package library is the video library service: it admits uploads into the
// store and catalog, lists and deletes them, and streams them back.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"vidshare/internal/admission"
	"vidshare/internal/catalog"
	"vidshare/internal/logging"
	"vidshare/internal/models"
	"vidshare/internal/notify"
	"vidshare/internal/storage"
	"vidshare/internal/stream"
)

const (
	commitAttempts = 3
	commitBackoff  = time.Millisecond
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means no unique filename could be allocated.
	ErrConflict = errors.New("could not allocate a unique filename")
)

type Service struct {
	store    *storage.Store
	cat      catalog.Catalog
	policy   admission.Policy
	notifier notify.Notifier
	log      logging.Logger
	now      func() time.Time
}

func NewService(store *storage.Store, cat catalog.Catalog, policy admission.Policy, notifier notify.Notifier, log logging.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		store:    store,
		cat:      cat,
		policy:   policy,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) Policy() admission.Policy { return s.policy }

// Upload receives body under a fresh name. The type is checked before any
// byte is written and the size once the body is fully received; a rejected
// upload leaves nothing behind.
func (s *Service) Upload(ctx context.Context, originalName, mimeType string, body io.Reader) (*models.UploadResult, error) {
	if err := s.policy.CheckType(originalName, mimeType); err != nil {
		return nil, err
	}

	p, err := s.store.Create()
	if err != nil {
		return nil, err
	}
	defer p.Abort()

	src := body
	if s.policy.MaxBytes > 0 {
		src = io.LimitReader(body, s.policy.MaxBytes+1)
	}
	if _, err := io.Copy(p, src); err != nil {
		return nil, fmt.Errorf("receive upload: %w", err)
	}
	if err := s.policy.CheckSize(p.Size()); err != nil {
		return nil, err
	}

	name, err := s.commit(ctx, p, originalName)
	if err != nil {
		return nil, err
	}

	entry := &models.UploadedFile{
		Filename:     name,
		OriginalName: originalName,
		Size:         p.Size(),
		MimeType:     storage.ContentType(name),
		Checksum:     p.Checksum(),
		CreatedAt:    s.now().UTC(),
	}
	s.index(ctx, entry)

	s.log.Info(ctx, "upload stored", "filename", name, "size", entry.Size)
	s.notifier.Notify(ctx, models.Event{Type: models.EventFileAdded, Payload: entry})
	return models.ResultFor(entry), nil
}

func (s *Service) commit(ctx context.Context, p *storage.Pending, originalName string) (string, error) {
	for attempt := 0; attempt < commitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(commitBackoff):
			}
		}
		name := storage.NewName(originalName, s.now())
		err := p.Commit(name)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, storage.ErrExists) {
			return "", fmt.Errorf("store upload: %w", err)
		}
		s.log.Debug(ctx, "filename taken, retrying", "filename", name, "attempt", attempt+1)
	}
	return "", ErrConflict
}

// index records entry. The file is already on disk, so catalog trouble is
// logged and left for Reconcile instead of failing the upload.
func (s *Service) index(ctx context.Context, entry *models.UploadedFile) {
	err := s.cat.Create(ctx, entry)
	if errors.Is(err, catalog.ErrDuplicateKey) {
		// the link succeeded, so the existing row points at a file that is gone
		s.log.Warn(ctx, "replacing stale catalog entry", "filename", entry.Filename)
		err = s.cat.Replace(ctx, entry)
	}
	if err != nil {
		s.log.Warn(ctx, "catalog insert failed, file kept on disk", "filename", entry.Filename, "error", err)
	}
}

// List returns entries newest first, skipping any whose file is gone.
func (s *Service) List(ctx context.Context) ([]*models.UploadedFile, error) {
	entries, err := s.cat.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	out := entries[:0]
	for _, e := range entries {
		if _, err := s.store.Stat(e.Filename); err != nil {
			s.log.Debug(ctx, "skipping entry without file", "filename", e.Filename)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, filename string) (*models.UploadedFile, error) {
	e, err := s.cat.Get(ctx, filename)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if _, err := s.store.Stat(filename); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// Delete removes the file and then the entry. Either one being present is
// enough for success; ErrNotFound only when both were already gone.
func (s *Service) Delete(ctx context.Context, filename string) error {
	fileErr := s.store.Remove(filename)
	if fileErr != nil && !errors.Is(fileErr, storage.ErrNotFound) {
		return fmt.Errorf("remove file: %w", fileErr)
	}

	catErr := s.cat.Delete(ctx, filename)
	if catErr != nil && !errors.Is(catErr, catalog.ErrNotFound) {
		if fileErr != nil {
			return fmt.Errorf("delete entry: %w", catErr)
		}
		s.log.Warn(ctx, "catalog delete failed, file already removed", "filename", filename, "error", catErr)
		catErr = nil
	}

	if fileErr != nil && catErr != nil {
		return ErrNotFound
	}

	s.log.Info(ctx, "upload deleted", "filename", filename)
	s.notifier.Notify(ctx, models.Event{Type: models.EventFileDeleted, Payload: &models.UploadedFile{Filename: filename}})
	return nil
}

// Stream serves the stored bytes with range support.
func (s *Service) Stream(w http.ResponseWriter, r *http.Request, filename string) error {
	err := stream.Serve(w, r, s.store, filename, s.log)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vidshare/internal/models"
	"vidshare/internal/storage"
)

// ErrTransferAborted ends a session that was cancelled by its owner.
var ErrTransferAborted = errors.New("transfer aborted")

// Source is the file handed from selection to upload. Open is called once per
// attempt and the reader is closed when the attempt ends.
type Source struct {
	Name     string
	Size     int64
	MimeType string
	Open     func() (io.ReadCloser, error)
}

func NewFileSource(path string) (*Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	name := filepath.Base(path)
	return &Source{
		Name:     name,
		Size:     fi.Size(),
		MimeType: storage.ContentType(name),
		Open:     func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Uploader sends a Source and reports the cumulative bytes handed to the
// network. progress is called from the request goroutine and must not block.
type Uploader interface {
	Upload(ctx context.Context, src *Source, progress func(sent int64)) (*models.UploadResult, error)
}

// Session is one upload of one Source. The estimator is owned by a single
// event loop goroutine; observer callbacks run on it and must be cheap.
type Session struct {
	ID string

	ctx      context.Context
	cancel   context.CancelFunc
	uploader Uploader
	src      *Source
	opts     Options
	observer func(Snapshot)

	once      sync.Once
	done      chan struct{}
	result    *models.UploadResult
	err       error
	sent      atomic.Int64
	cancelled atomic.Bool
}

func NewSession(ctx context.Context, uploader Uploader, src *Source, opts Options, observer func(Snapshot)) *Session {
	ctx, cancel := context.WithCancel(ctx)
	if observer == nil {
		observer = func(Snapshot) {}
	}
	return &Session{
		ID:       uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
		uploader: uploader,
		src:      src,
		opts:     opts.withDefaults(),
		observer: observer,
		done:     make(chan struct{}),
	}
}

// Start runs the upload and blocks until it ends. Concurrent and repeated
// calls share one run and return its outcome.
func (s *Session) Start() (*models.UploadResult, error) {
	s.once.Do(func() { go s.run() })
	<-s.done
	return s.result, s.err
}

// Cancel aborts the request and releases its handles. No observer call starts
// after Cancel returns.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

// Done is closed once the run has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) emit(snap Snapshot) {
	if s.cancelled.Load() {
		return
	}
	s.observer(snap)
}

type outcome struct {
	res *models.UploadResult
	err error
}

func (s *Session) run() {
	defer close(s.done)
	defer s.cancel()

	est := NewEstimator(s.opts)
	finish := func(res *models.UploadResult, err error) {
		s.result, s.err = res, err
		if err != nil {
			est.Fail(err.Error())
		} else {
			est.Done()
		}
		s.emit(est.Snapshot())
	}

	if s.ctx.Err() != nil || s.cancelled.Load() {
		finish(nil, ErrTransferAborted)
		return
	}
	if err := s.opts.Policy.Check(s.src.Name, s.src.MimeType, s.src.Size); err != nil {
		finish(nil, err)
		return
	}

	est.Begin(s.src.Size, time.Now())
	s.emit(est.Snapshot())

	results := make(chan outcome, 1)
	go func() {
		res, err := s.uploader.Upload(s.ctx, s.src, func(n int64) { s.sent.Store(n) })
		results <- outcome{res, err}
	}()

	sample := time.NewTicker(s.opts.SampleInterval)
	defer sample.Stop()
	tick := time.NewTicker(s.opts.TickInterval)
	defer tick.Stop()

	for {
		select {
		case now := <-sample.C:
			est.Sample(s.sent.Load(), s.src.Size, now)
			s.emit(est.Snapshot())
		case now := <-tick.C:
			est.Tick(now)
			s.emit(est.Snapshot())
		case o := <-results:
			if o.err != nil {
				if s.cancelled.Load() || errors.Is(o.err, context.Canceled) {
					o.err = ErrTransferAborted
				}
				finish(nil, o.err)
				return
			}
			if o.res == nil {
				finish(nil, errors.New("Upload failed"))
				return
			}
			est.Sample(s.sent.Load(), s.src.Size, time.Now())
			finish(o.res, nil)
			return
		}
	}
}

// Stage holds the single active session. Beginning a new one cancels the
// previous session and drops any update it still produces.
type Stage struct {
	mu     sync.Mutex
	gen    uint64
	active *Session
}

func (st *Stage) Begin(ctx context.Context, uploader Uploader, src *Source, opts Options, observer func(Snapshot)) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.active != nil {
		st.active.Cancel()
	}
	st.gen++
	gen := st.gen
	guarded := func(snap Snapshot) {
		if !st.current(gen) {
			return
		}
		if observer != nil {
			observer(snap)
		}
	}
	st.active = NewSession(ctx, uploader, src, opts, guarded)
	return st.active
}

// Active returns the current session or nil.
func (st *Stage) Active() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.active
}

// Cancel aborts the active session, if any.
func (st *Stage) Cancel() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active != nil {
		st.active.Cancel()
		st.active = nil
	}
	st.gen++
}

func (st *Stage) current(gen uint64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.gen == gen
}

// Package storage keeps uploaded bytes in a single flat directory and derives
// the names they are stored under.
package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const partialPrefix = ".partial-"

var (
	ErrNotFound = errors.New("file not found")
	ErrExists   = errors.New("file already exists")
)

type Store struct {
	dir string
}

// NewStore creates dir when missing.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return &Store{dir: abs}, nil
}

func (s *Store) Dir() string { return s.dir }

// Path returns the absolute path of a stored file. Names that are not a
// single safe segment report ErrNotFound.
func (s *Store) Path(name string) (string, error) {
	if !ValidName(name) {
		return "", ErrNotFound
	}
	return filepath.Join(s.dir, name), nil
}

// Stat returns file info for a committed file.
func (s *Store) Stat(name string) (fs.FileInfo, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotFound
	}
	return info, nil
}

// Remove deletes a committed file.
func (s *Store) Remove(name string) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Scan lists committed regular files. In-flight uploads and hidden files are
// skipped.
func (s *Store) Scan() ([]fs.FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	files := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, info)
	}
	return files, nil
}

// Create opens a temp file inside the upload directory. The caller copies the
// body into it and then either commits it under its final name or aborts it.
func (s *Store) Create() (*Pending, error) {
	f, err := os.CreateTemp(s.dir, partialPrefix+uuid.NewString()+"-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &Pending{store: s, f: f, hash: h}, nil
}

// Pending is an upload being received. It is not visible to Scan until
// committed.
type Pending struct {
	store *Store
	f     *os.File
	hash  hash.Hash
	size  int64

	once sync.Once
	done bool
}

func (p *Pending) Write(b []byte) (int, error) {
	n, err := p.f.Write(b)
	p.hash.Write(b[:n])
	p.size += int64(n)
	return n, err
}

// Size is the number of bytes written so far.
func (p *Pending) Size() int64 { return p.size }

// Checksum is the hex BLAKE2b-256 of the bytes written so far.
func (p *Pending) Checksum() string { return hex.EncodeToString(p.hash.Sum(nil)) }

// Commit flushes the temp file and links it under name. It never replaces an
// existing file: a taken name yields ErrExists and the pending file stays
// usable for another Commit.
func (p *Pending) Commit(name string) error {
	if p.done {
		return fmt.Errorf("commit %s: upload already finished", name)
	}
	dst, err := p.store.Path(name)
	if err != nil {
		return fmt.Errorf("commit %q: invalid name", name)
	}
	if err := p.f.Sync(); err != nil {
		return fmt.Errorf("sync upload: %w", err)
	}
	if err := os.Link(p.f.Name(), dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("link %s: %w", name, err)
	}
	p.cleanup()
	return nil
}

// Abort discards the temp file. Safe to call after Commit and more than once.
func (p *Pending) Abort() {
	p.cleanup()
}

func (p *Pending) cleanup() {
	p.once.Do(func() {
		p.done = true
		p.f.Close()
		os.Remove(p.f.Name())
	})
}

// SweepPartials removes temp files left behind by a crash.
func (s *Store) SweepPartials() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read upload dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), partialPrefix) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
				n++
			}
		}
	}
	return n, nil
}

// Open opens a committed file for reading.
func (s *Store) Open(name string) (*os.File, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Checksum hashes a committed file. Used when reconciling files that were
// stored while the catalog was unavailable.
func (s *Store) Checksum(name string) (string, error) {
	f, err := s.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Package stream serves stored videos over HTTP with single byte-range
// support so players can seek.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"vidshare/internal/logging"
	"vidshare/internal/storage"
)

// Opener resolves a stored filename to an open file.
type Opener interface {
	Open(name string) (*os.File, error)
}

// Serve writes the named file to w. When r carries a Range header the
// response is 206 with exactly the requested bytes; a malformed header falls
// back to the full file with 200. It returns storage.ErrNotFound before
// writing anything when the file does not exist. Errors after the headers are
// sent only end the stream early and are logged.
func Serve(w http.ResponseWriter, r *http.Request, files Opener, name string, log logging.Logger) error {
	f, err := files.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return storage.ErrNotFound
	}
	total := info.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", storage.ContentType(name))
	h.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))

	status := http.StatusOK
	span := ByteRange{Start: 0, End: total - 1}

	if header := r.Header.Get("Range"); header != "" {
		br, err := ParseRange(header, total)
		switch {
		case err == nil:
			status = http.StatusPartialContent
			span = br
			h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.Start, br.End, total))
		case errors.Is(err, ErrUnsatisfiable):
			h.Set("Content-Range", fmt.Sprintf("bytes */%d", total))
			h.Del("Content-Type")
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return nil
		default:
			log.Debug(r.Context(), "ignoring malformed range", "filename", name, "range", header)
		}
	}

	length := span.Length()
	if total == 0 {
		length = 0
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead || length == 0 {
		return nil
	}

	if span.Start > 0 {
		if _, err := f.Seek(span.Start, io.SeekStart); err != nil {
			log.Warn(r.Context(), "seek failed, stream truncated", "filename", name, "error", err)
			return nil
		}
	}
	n, err := io.CopyN(w, f, length)
	if err != nil && !errors.Is(err, context.Canceled) {
		// client went away, or the file was deleted/truncated mid-stream
		log.Warn(r.Context(), "stream truncated", "filename", name, "sent", n, "want", length, "error", err)
	}
	return nil
}

package stream

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrMalformedRange means the header could not be parsed; the file is
	// served in full.
	ErrMalformedRange = errors.New("malformed range")
	// ErrUnsatisfiable means the range starts past the end of the file.
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// ByteRange is an inclusive [Start, End] span of a file.
type ByteRange struct {
	Start, End int64
}

func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ParseRange interprets a single-range "bytes=" header against a file of
// total bytes. Supported forms are "bytes=start-end", "bytes=start-" and the
// suffix form "bytes=-n". An end beyond the file is clamped. Multiple ranges
// are not supported and count as malformed.
func ParseRange(header string, total int64) (ByteRange, error) {
	set, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(set, ",") {
		return ByteRange{}, ErrMalformedRange
	}
	first, last, ok := strings.Cut(strings.TrimSpace(set), "-")
	if !ok {
		return ByteRange{}, ErrMalformedRange
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// suffix: the last n bytes
		n, err := parseOffset(last)
		if err != nil {
			return ByteRange{}, ErrMalformedRange
		}
		if n == 0 || total == 0 {
			return ByteRange{}, ErrUnsatisfiable
		}
		if n > total {
			n = total
		}
		return ByteRange{Start: total - n, End: total - 1}, nil
	}

	start, err := parseOffset(first)
	if err != nil {
		return ByteRange{}, ErrMalformedRange
	}
	end := total - 1
	if last != "" {
		end, err = parseOffset(last)
		if err != nil || end < start {
			return ByteRange{}, ErrMalformedRange
		}
	}
	if start >= total {
		return ByteRange{}, ErrUnsatisfiable
	}
	if end >= total {
		end = total - 1
	}
	return ByteRange{Start: start, End: end}, nil
}

func parseOffset(s string) (int64, error) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, ErrMalformedRange
	}
	return strconv.ParseInt(s, 10, 64)
}

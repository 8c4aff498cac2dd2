// Package admission decides whether an upload may enter the catalog. The same
// Policy runs on the server and, mirrored, in the upload client.
package admission

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"vidshare/pkg/utils"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation error")

// ValidationError carries a message meant to be shown to the user verbatim.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Policy holds the type and size rules. MaxBytes <= 0 disables the upper bound.
type Policy struct {
	MinBytes          int64
	MaxBytes          int64
	AllowedTypes      []string
	AllowedExtensions []string
}

// DefaultPolicy accepts MP4 files between 10 MB and 200 MB.
func DefaultPolicy() Policy {
	return Policy{
		MinBytes:          10 << 20,
		MaxBytes:          200 << 20,
		AllowedTypes:      []string{"video/mp4"},
		AllowedExtensions: []string{".mp4"},
	}
}

// Validate reports configuration mistakes at startup.
func (p Policy) Validate() error {
	if p.MinBytes < 0 {
		return fmt.Errorf("min upload size must not be negative")
	}
	if p.MaxBytes > 0 && p.MinBytes > p.MaxBytes {
		return fmt.Errorf("min upload size %d exceeds max %d", p.MinBytes, p.MaxBytes)
	}
	if len(p.AllowedTypes) == 0 && len(p.AllowedExtensions) == 0 {
		return fmt.Errorf("at least one allowed type or extension is required")
	}
	return nil
}

// Check runs the type check and then the size check and returns the first
// failure.
func (p Policy) Check(name, mimeType string, size int64) error {
	if err := p.CheckType(name, mimeType); err != nil {
		return err
	}
	return p.CheckSize(size)
}

// CheckType accepts a known video MIME type or an allowed extension.
func (p Policy) CheckType(name, mimeType string) error {
	if mt := normalizeType(mimeType); mt != "" {
		for _, t := range p.AllowedTypes {
			if strings.EqualFold(t, mt) {
				return nil
			}
		}
	}
	if p.AllowsExtension(path.Ext(name)) {
		return nil
	}
	return invalid("Only %s files are allowed.", p.describeTypes())
}

// CheckSize enforces the configured bounds.
func (p Policy) CheckSize(size int64) error {
	if size < p.MinBytes || size <= 0 {
		return invalid("File must be at least %s.", utils.FormatBytes(max(p.MinBytes, 1)))
	}
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return invalid("File must be at most %s.", utils.FormatBytes(p.MaxBytes))
	}
	return nil
}

// AllowsExtension reports whether ext (with the dot) is allowed, ignoring case.
func (p Policy) AllowsExtension(ext string) bool {
	if ext == "" {
		return false
	}
	for _, e := range p.AllowedExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func (p Policy) describeTypes() string {
	if len(p.AllowedExtensions) > 0 {
		return strings.Join(p.AllowedExtensions, ", ")
	}
	return strings.Join(p.AllowedTypes, ", ")
}

func normalizeType(s string) string {
	if s == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return mt
}

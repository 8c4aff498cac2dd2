package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	defaultExt  = ".mp4"
	defaultStem = "video"
	maxStemLen  = 100
)

var (
	unsafeRun   = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	validExt    = regexp.MustCompile(`^\.[A-Za-z0-9]{1,10}$`)
	stampedName = regexp.MustCompile(`^\d+_`)
)

// NewName derives the stored filename for an upload: a millisecond timestamp,
// an underscore, the sanitized stem and the extension. Only the last path
// element of original is used.
func NewName(original string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}

	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if !validExt.MatchString(ext) {
		if ext != "" && stem == "" {
			// ".hidden" style names: treat the whole thing as the stem
			stem = ext
		}
		ext = defaultExt
	}

	stem = unsafeRun.ReplaceAllString(stem, "_")
	if len(stem) > maxStemLen {
		stem = stem[:maxStemLen]
	}
	if strings.Trim(stem, "_") == "" {
		stem = defaultStem
	}

	return fmt.Sprintf("%d_%s%s", now.UnixMilli(), stem, strings.ToLower(ext))
}

// DisplayName recovers a human readable name from a stored filename by
// dropping the timestamp prefix.
func DisplayName(stored string) string {
	if s := stampedName.ReplaceAllString(stored, ""); s != "" {
		return s
	}
	return stored
}

// ValidName reports whether name can be used as a single path segment inside
// the upload directory.
func ValidName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}

package models

import (
	"net/url"
	"time"
)

// UploadedFile is one catalog entry. It is written once when an upload is
// admitted and never mutated afterwards.
type UploadedFile struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalname,omitempty"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimetype,omitempty"`
	Checksum     string    `json:"checksum,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UploadResult is the body returned by a successful upload.
type UploadResult struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// Event is pushed to websocket subscribers and other notifiers.
type Event struct {
	Type    string        `json:"type"` // fileAdded, fileDeleted
	Payload *UploadedFile `json:"payload"`
}

const (
	EventFileAdded   = "fileAdded"
	EventFileDeleted = "fileDeleted"
)

// VideoURL is the streaming path for a stored filename.
func VideoURL(filename string) string {
	return "/video/" + url.PathEscape(filename)
}

// ResultFor builds the upload response for a freshly created entry.
func ResultFor(f *UploadedFile) *UploadResult {
	return &UploadResult{
		Filename: f.Filename,
		URL:      VideoURL(f.Filename),
		Size:     f.Size,
		Checksum: f.Checksum,
	}
}

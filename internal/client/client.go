// Package client talks to the vidshare HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/blake2b"

	"vidshare/internal/models"
	"vidshare/internal/transfer"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrChecksumMismatch = errors.New("server checksum does not match the bytes sent")
)

// APIError is a non-2xx answer. Message is the server's {error} text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Upload failed"
}

type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
}

// New returns a client for server, e.g. http://localhost:5000. Uploads have
// no client-side timeout; callers bound them with a context.
func New(server string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", server)
	}
	return &Client{
		base:   u,
		http:   &http.Client{},
		dialer: websocket.DefaultDialer,
	}, nil
}

func (c *Client) url(p string) string {
	return c.base.String() + p
}

// VideoURL is the absolute streaming URL for a stored filename.
func (c *Client) VideoURL(filename string) string {
	return c.url(models.VideoURL(filename))
}

// Upload streams src as a multipart form. progress receives the cumulative
// file bytes handed to the connection.
func (c *Client) Upload(ctx context.Context, src *transfer.Source, progress func(sent int64)) (*models.UploadResult, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Name, err)
	}
	defer rc.Close()

	var head, tail bytes.Buffer
	mw := multipart.NewWriter(&head)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, src.Name))
	if src.MimeType != "" {
		h.Set("Content-Type", src.MimeType)
	}
	if _, err := mw.CreatePart(h); err != nil {
		return nil, err
	}
	end := multipart.NewWriter(&tail)
	if err := end.SetBoundary(mw.Boundary()); err != nil {
		return nil, err
	}
	if err := end.Close(); err != nil {
		return nil, err
	}

	sum, _ := blake2b.New256(nil)
	body := &meter{r: io.LimitReader(rc, src.Size), hash: sum, progress: progress}
	length := int64(head.Len()) + src.Size + int64(tail.Len())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/files/upload"),
		io.MultiReader(&head, body, &tail))
	if err != nil {
		return nil, err
	}
	req.ContentLength = length
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", src.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var res models.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if res.Checksum != "" && res.Checksum != hex.EncodeToString(sum.Sum(nil)) {
		return nil, ErrChecksumMismatch
	}
	return &res, nil
}

func (c *Client) List(ctx context.Context) ([]*models.UploadedFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/files/list"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var files []*models.UploadedFile
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return files, nil
}

func (c *Client) Delete(ctx context.Context, filename string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url("/api/files/"+url.PathEscape(filename)), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return decodeError(resp)
	}
}

// Watch calls fn for every event pushed by the server until ctx is done or
// the connection drops.
func (c *Client) Watch(ctx context.Context, fn func(models.Event)) error {
	u := *c.base
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path += "/ws"

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev models.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		fn(ev)
	}
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// meter hashes and counts the file bytes as the transport reads them.
type meter struct {
	r        io.Reader
	hash     hash.Hash
	sent     atomic.Int64
	progress func(int64)
}

func (m *meter) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	if n > 0 {
		m.hash.Write(p[:n])
		total := m.sent.Add(int64(n))
		if m.progress != nil {
			m.progress(total)
		}
	}
	return n, err
}

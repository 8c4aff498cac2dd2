package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"vidshare/internal/admission"
	"vidshare/internal/library"
	"vidshare/internal/logging"
)

// multipartSlack covers boundaries and part headers around the file bytes.
const multipartSlack = 1 << 20

type Options struct {
	Port   int
	Origin string
	// Backend is reported by /healthz.
	Backend string
}

type Server struct {
	opts Options
	lib  *library.Service
	ws   http.Handler
	log  logging.Logger
}

// NewServer wires the HTTP surface. ws serves /ws and may be nil.
func NewServer(opts Options, lib *library.Service, ws http.Handler, log logging.Logger) *Server {
	if opts.Origin == "" {
		opts.Origin = "*"
	}
	return &Server{opts: opts, lib: lib, ws: ws, log: log}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/files/upload", s.handleUpload)
	mux.HandleFunc("GET /api/files/list", s.handleList)
	mux.HandleFunc("GET /api/files/stream/{filename}", s.handleStream)
	mux.HandleFunc("GET /api/files/{filename}", s.handleGet)
	mux.HandleFunc("DELETE /api/files/{filename}", s.handleDelete)
	mux.HandleFunc("GET /video/{filename}", s.handleStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.ws != nil {
		mux.Handle("GET /ws", s.ws)
	}

	return s.accessLog(s.cors(mux))
}

// Start serves until ctx is cancelled and then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ---- Handlers ----

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	policy := s.lib.Policy()
	if policy.MaxBytes > 0 {
		limit := policy.MaxBytes + multipartSlack
		if r.ContentLength > limit {
			jsonError(w, policy.CheckSize(policy.MaxBytes+1).Error(), http.StatusBadRequest)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		jsonError(w, "No file uploaded.", http.StatusBadRequest)
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			jsonError(w, "No file uploaded.", http.StatusBadRequest)
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		res, err := s.lib.Upload(r.Context(), part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := s.lib.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	f, err := s.lib.Get(r.Context(), r.PathValue("filename"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.lib.Delete(r.Context(), r.PathValue("filename")); err != nil {
		s.fail(w, r, err)
		return
	}
	jsonOK(w)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if err := s.lib.Stream(w, r, r.PathValue("filename")); err != nil {
		s.fail(w, r, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "catalog": s.opts.Backend})
}

// fail maps service errors onto status codes. Only unexpected failures are
// logged as errors.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, admission.ErrValidation):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &tooLarge):
		jsonError(w, s.lib.Policy().CheckSize(s.lib.Policy().MaxBytes+1).Error(), http.StatusBadRequest)
	case errors.Is(err, library.ErrNotFound):
		jsonError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, library.ErrConflict):
		jsonError(w, "A file with that name is being stored, please retry.", http.StatusConflict)
	case errors.Is(err, context.Canceled):
		s.log.Info(r.Context(), "request cancelled by client", "path", r.URL.Path)
	default:
		s.log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// ---- Helpers ----

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

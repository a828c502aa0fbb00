// Package server exposes the manuscript pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yuanying/kdpforge/internal/manuscript"
	"github.com/yuanying/kdpforge/internal/parser"
	"github.com/yuanying/kdpforge/internal/pipeline"
)

const (
	// DefaultAddr is the listen address used when Config.Addr is empty.
	DefaultAddr = ":8080"
	// DefaultMaxUploadBytes caps a request body.
	DefaultMaxUploadBytes = 50 << 20

	multipartMemory = 32 << 20
)

// Config holds server settings.
type Config struct {
	Addr           string
	MaxUploadBytes int64
	// Defaults is the format config a request's "config" field is merged over.
	Defaults manuscript.FormatConfig
	Logger   *slog.Logger
	Now      func() time.Time
}

// Server serves the manuscript API.
type Server struct {
	cfg    Config
	log    *slog.Logger
	router chi.Router
}

// New creates a server with its routes registered.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{cfg: cfg, log: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/kdp/format", s.handleFormat)
		r.Post("/kdp/parse", s.handleParse)
		r.Post("/epub", s.handleEPUB)
		r.Post("/review", s.handleReview)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// upload is a manuscript posted as multipart form data.
type upload struct {
	name   string
	data   []byte
	format parser.Format
	config manuscript.FormatConfig
}

// readUpload reads the "file" part together with the optional "config"
// JSON and "format" fields. The format may also come from the query.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing file field: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	up := &upload{name: header.Filename, data: data, config: s.cfg.Defaults}

	if raw := strings.TrimSpace(r.FormValue("config")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &up.config); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	if name := r.FormValue("format"); name != "" {
		f, err := parser.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		up.format = f
	}
	return up, nil
}

func (s *Server) pipeline(r *http.Request, up *upload, compress bool) *pipeline.Pipeline {
	return pipeline.New(pipeline.Options{
		Format:   up.format,
		Name:     up.name,
		Config:   up.config,
		Compress: compress,
		Logger:   s.log.With("request_id", middleware.GetReqID(r.Context())),
		Now:      s.cfg.Now,
	})
}

func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		uploadError(w, err)
		return
	}
	compress, _ := strconv.ParseBool(r.FormValue("compress"))

	out, err := s.pipeline(r, up, compress).Format(r.Context(), up.data)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	issues, err := json.Marshal(out.Issues())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", attachment(up.name, ".pdf"))
	h.Set("X-Page-Count", strconv.Itoa(out.PageCount()))
	h.Set("X-Detected-Issues", string(issues))
	h.Set("Content-Length", strconv.Itoa(len(out.PDF)))
	w.WriteHeader(http.StatusOK)
	w.Write(out.PDF)
}

// parseResponse is the body of /api/kdp/parse.
type parseResponse struct {
	*manuscript.Content
	Markdown string `json:"markdown,omitempty"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		uploadError(w, err)
		return
	}
	p := s.pipeline(r, up, false)

	if r.URL.Query().Get("output") == "markdown" {
		md, content, err := p.Markdown(r.Context(), up.data)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, parseResponse{Content: content, Markdown: md})
		return
	}

	res, err := p.Parse(r.Context(), up.data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, parseResponse{Content: res.Content})
}

func (s *Server) handleEPUB(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		uploadError(w, err)
		return
	}
	var buf strings.Builder
	if _, err := s.pipeline(r, up, false).EPUB(r.Context(), up.data, &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, "application/epub+zip", attachment(up.name, ".epub"), buf.String())
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		uploadError(w, err)
		return
	}
	var buf strings.Builder
	if _, err := s.pipeline(r, up, false).Review(r.Context(), up.data, &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		attachment(up.name, ".docx"), buf.String())
}

func uploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large", fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, err.Error(), "")
}

// fail maps a pipeline error to a status code.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	log := s.log.With("path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))

	var pe *manuscript.ParseError
	switch {
	case errors.As(err, &pe):
		log.Warn("unreadable manuscript", "error", err)
		writeError(w, http.StatusBadRequest, "failed to parse manuscript", pe.Hint)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Info("request cancelled", "error", err)
		writeError(w, http.StatusServiceUnavailable, "request cancelled", "")
	case manuscript.IsLayoutError(err):
		log.Error("layout failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error(), "")
	default:
		log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

// attachment builds a Content-Disposition header naming the output after
// the uploaded file.
func attachment(name, ext string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "manuscript"
	}
	base = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, base)
	return fmt.Sprintf("attachment; filename=%q", base+ext)
}

func writeFile(w http.ResponseWriter, contentType, disposition, body string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func writeError(w http.ResponseWriter, code int, msg, hint string) {
	writeJSON(w, code, errorResponse{Error: msg, Hint: hint})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/form-relay-service/internal/config"
	"github.com/skypro1111/form-relay-service/internal/metrics"
)

const (
	htmlContentType     = "text/html"
	fallbackContentType = "text/plain"

	// maxSubmissionSize is the largest body that fits in one UDP datagram.
	maxSubmissionSize = 65507
)

// Relayer forwards a raw form body to the relay listener
type Relayer interface {
	Send(ctx context.Context, payload []byte) error
}

// HTTPServer serves the site pages and static assets and relays form posts
type HTTPServer struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
	config   *config.HTTPConfig
	relay    Relayer
	metrics  *metrics.Metrics
}

// NewHTTPServer creates a new site server
func NewHTTPServer(cfg *config.HTTPConfig, logger *slog.Logger, relay Relayer, m *metrics.Metrics) *HTTPServer {
	h := &HTTPServer{
		logger:  logger,
		config:  cfg,
		relay:   relay,
		metrics: m,
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures the site routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.withMetrics("/", h.handleIndex))
	mux.HandleFunc("GET /message", h.withMetrics("/message", h.handleMessage))
	mux.HandleFunc("GET /", h.withMetrics("static", h.handleStatic))

	// The POST path is irrelevant: every post is a form submission.
	mux.HandleFunc("POST /", h.withMetrics("submit", h.handleSubmit))
}

// Handler returns the routed handler, for embedding and tests
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, route, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, route, errorType)
		}

		h.logger.Debug("HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.statusCode),
			slog.Float64("duration_seconds", duration),
		)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start binds the listening socket and serves in the background. A bind
// failure is returned synchronously.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	h.logger.Info("Starting HTTP server",
		slog.String("address", ln.Addr().String()),
		slog.String("base_dir", h.config.BaseDir),
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start
func (h *HTTPServer) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleIndex implements GET /
func (h *HTTPServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.sendPage(w, h.config.IndexPage, http.StatusOK)
}

// handleMessage implements GET /message
func (h *HTTPServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	h.sendPage(w, h.config.MessagePage, http.StatusOK)
}

// handleStatic serves any other file under the base directory, or the error
// page with 404 when there is no such file
func (h *HTTPServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	filePath, ok := h.resolve(r.URL.Path)
	if !ok {
		h.sendPage(w, h.config.ErrorPage, http.StatusNotFound)
		return
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		h.logger.Error("Failed to read static file",
			slog.String("file", filePath),
			slog.String("error", err.Error()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = fallbackContentType
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleSubmit relays the raw body as one datagram and redirects to /message.
// The redirect is sent whether or not the datagram could be delivered.
func (h *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength < 0 {
		h.logger.Warn("Rejecting form post without Content-Length",
			slog.String("remote_addr", r.RemoteAddr),
		)
		http.Error(w, "Content-Length required", http.StatusLengthRequired)
		return
	}

	if r.ContentLength > maxSubmissionSize {
		h.logger.Warn("Rejecting oversized form post",
			slog.String("remote_addr", r.RemoteAddr),
			slog.Int64("content_length", r.ContentLength),
		)
		http.Error(w, "Form data too large", http.StatusRequestEntityTooLarge)
		return
	}

	body := make([]byte, r.ContentLength)
	if _, err := io.ReadFull(r.Body, body); err != nil {
		h.logger.Warn("Failed to read form body",
			slog.String("remote_addr", r.RemoteAddr),
			slog.Int64("content_length", r.ContentLength),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Incomplete request body", http.StatusBadRequest)
		return
	}

	submissionID := uuid.New().String()
	if err := h.relay.Send(r.Context(), body); err != nil {
		h.metrics.RecordRelayFailure()
		h.logger.Error("Failed to relay form submission",
			slog.String("submission_id", submissionID),
			slog.String("error", err.Error()),
		)
	} else {
		h.metrics.RecordSubmissionRelayed()
		h.logger.Info("Form submission relayed",
			slog.String("submission_id", submissionID),
			slog.Int("size", len(body)),
		)
	}

	w.Header().Set("Location", "/message")
	w.WriteHeader(http.StatusFound)
}

// sendPage writes one of the designated HTML documents
func (h *HTTPServer) sendPage(w http.ResponseWriter, name string, status int) {
	pagePath := filepath.Join(h.config.BaseDir, name)

	data, err := os.ReadFile(pagePath)
	if err != nil {
		h.logger.Error("Failed to read page",
			slog.String("file", pagePath),
			slog.String("error", err.Error()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", htmlContentType)
	w.WriteHeader(status)
	w.Write(data)
}

// resolve maps a URL path to a regular file under the base directory.
// Paths that leave the base directory or name a directory are not found.
func (h *HTTPServer) resolve(urlPath string) (string, bool) {
	rel := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if rel == "" {
		return "", false
	}

	filePath := filepath.Join(h.config.BaseDir, filepath.FromSlash(rel))

	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		return "", false
	}

	return filePath, true
}

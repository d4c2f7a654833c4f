package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/form-relay-service/internal/config"
	"github.com/skypro1111/form-relay-service/internal/metrics"
	"github.com/skypro1111/form-relay-service/internal/relay"
	"github.com/skypro1111/form-relay-service/internal/storage"
)

const (
	indexHTML   = "<html><body><form method=\"post\" action=\"/message\"></form></body></html>"
	messageHTML = "<html><body>Thanks!</body></html>"
	errorHTML   = "<html><body>Not found</body></html>"
)

type recordingRelay struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (r *recordingRelay) Send(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, append([]byte(nil), payload...))
	return r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func siteDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"index.html":       indexHTML,
		"message.html":     messageHTML,
		"error.html":       errorHTML,
		"style.css":        "body { color: red; }",
		"logo.png":         "\x89PNG",
		"notes.unknownext": "plain notes",
		"assets/app.js":    "console.log('hi')",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func newTestServer(t *testing.T, baseDir string, r Relayer) (*HTTPServer, *metrics.Metrics) {
	t.Helper()
	cfg := config.Default().HTTP
	cfg.BaseDir = baseDir
	m := metrics.NewMetrics()
	return NewHTTPServer(&cfg, testLogger(), r, m), m
}

func TestPages(t *testing.T) {
	h, _ := newTestServer(t, siteDir(t), &recordingRelay{})

	tests := []struct {
		name   string
		path   string
		status int
		body   string
	}{
		{"index", "/", http.StatusOK, indexHTML},
		{"message", "/message", http.StatusOK, messageHTML},
		{"missing file", "/nonexistent-path", http.StatusNotFound, errorHTML},
		{"directory", "/assets", http.StatusNotFound, errorHTML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestDefaultBaseDirServesBundledSite(t *testing.T) {
	// Tests run in the package directory; the bundled site sits at the module root.
	root := filepath.Join("..", "..")
	cfg := config.Default().HTTP
	cfg.BaseDir = filepath.Join(root, cfg.BaseDir)
	h := NewHTTPServer(&cfg, testLogger(), &recordingRelay{}, metrics.NewMetrics())

	for _, page := range []struct{ path, file string }{
		{"/", "index.html"},
		{"/message", "message.html"},
		{"/style.css", "style.css"},
	} {
		t.Run(page.file, func(t *testing.T) {
			want, err := os.ReadFile(filepath.Join(cfg.BaseDir, page.file))
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, page.path, nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, string(want), rec.Body.String())
		})
	}
}

func TestStaticFiles(t *testing.T) {
	h, _ := newTestServer(t, siteDir(t), &recordingRelay{})

	tests := []struct {
		path        string
		contentType string
		body        string
	}{
		{"/style.css", "text/css", "body { color: red; }"},
		{"/assets/app.js", "javascript", "console.log('hi')"},
		{"/logo.png", "image/png", "\x89PNG"},
		{"/notes.unknownext", "text/plain", "plain notes"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), tt.contentType)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestStaticCannotEscapeBaseDir(t *testing.T) {
	parent := t.TempDir()
	base := filepath.Join(parent, "site")
	require.NoError(t, os.MkdirAll(base, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "error.html"), []byte(errorHTML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("secret"), 0o644))

	h, _ := newTestServer(t, base, &recordingRelay{})

	_, ok := h.resolve("/../secret.txt")
	assert.False(t, ok)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.URL.Path = "/../secret.txt"
	h.handleStatic(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestMissingPageIsServerError(t *testing.T) {
	dir := t.TempDir()
	h, m := newTestServer(t, dir, &recordingRelay{})

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPErrors.WithLabelValues("GET", "/", "server_error")))
}

func TestSubmitRelaysBodyAndRedirects(t *testing.T) {
	r := &recordingRelay{}
	h, m := newTestServer(t, siteDir(t), r)

	body := "name=Alice&msg=Hi+there"
	req := httptest.NewRequest(http.MethodPost, "/any/path/at/all", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/message", rec.Header().Get("Location"))
	assert.Empty(t, rec.Body.String())

	require.Len(t, r.payloads, 1)
	assert.Equal(t, body, string(r.payloads[0]))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubmissionsRelayed))
}

func TestSubmitRedirectsEvenWhenRelayFails(t *testing.T) {
	r := &recordingRelay{err: errors.New("connection refused")}
	h, m := newTestServer(t, siteDir(t), r)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/message", rec.Header().Get("Location"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayFailures))
}

func TestSubmitRequiresContentLength(t *testing.T) {
	r := &recordingRelay{}
	h, _ := newTestServer(t, siteDir(t), r)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusLengthRequired, rec.Code)
	assert.Empty(t, r.payloads)
}

func TestSubmitShortBody(t *testing.T) {
	r := &recordingRelay{}
	h, _ := newTestServer(t, siteDir(t), r)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
	req.ContentLength = 10
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, r.payloads)
}

func TestSubmitTooLarge(t *testing.T) {
	r := &recordingRelay{}
	h, _ := newTestServer(t, siteDir(t), r)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
	req.ContentLength = maxSubmissionSize + 1
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, r.payloads)
}

func TestUnsupportedMethod(t *testing.T) {
	h, _ := newTestServer(t, siteDir(t), &recordingRelay{})

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// TestFormToStore runs the whole chain: HTTP post, UDP datagram, listener,
// JSON store on disk.
func TestFormToStore(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "storage", "data.json")
	store := storage.NewJSONStore(storePath)

	relayCfg := &config.RelayConfig{Address: "127.0.0.1", Port: 0, BufferSize: 1024}
	listener := relay.NewListener(relayCfg, testLogger(), store, metrics.NewMetrics())
	require.NoError(t, listener.Start())
	defer listener.Stop()

	h, _ := newTestServer(t, siteDir(t), relay.NewSenderTo(listener.Addr().String()))
	site := httptest.NewServer(h.Handler())
	defer site.Close()

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Post(site.URL+"/", "application/x-www-form-urlencoded", strings.NewReader("name=Alice&msg=Hi+there"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/message", resp.Header.Get("Location"))

	require.Eventually(t, func() bool {
		return listener.Statistics().DatagramsPersisted == 1
	}, 2*time.Second, 10*time.Millisecond)

	log, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, log.Len())
	assert.Equal(t, map[string]string{"name": "Alice", "msg": "Hi there"}, log.Entries()[0].Fields.Map())
}

func TestStartStop(t *testing.T) {
	cfg := config.Default().HTTP
	cfg.Address = "127.0.0.1"
	cfg.Port = 0
	cfg.BaseDir = siteDir(t)

	h := NewHTTPServer(&cfg, testLogger(), &recordingRelay{}, metrics.NewMetrics())
	require.NoError(t, h.Start())

	resp, err := http.Get("http://" + h.Addr().String() + "/message")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, messageHTML, string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, h.Stop(ctx))
}

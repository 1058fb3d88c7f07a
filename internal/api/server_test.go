package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"

	"github.com/mmcdole/b4/internal/bundle"
	"github.com/mmcdole/b4/internal/log"
	"github.com/mmcdole/b4/internal/metrics"
	"github.com/mmcdole/b4/internal/pipeline"
	"github.com/mmcdole/b4/internal/ratelimit"
	"github.com/mmcdole/b4/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newStoreServer runs an in-memory document store holding one book
func newStoreServer(t *testing.T) *httptest.Server {
	t.Helper()
	docs, err := store.NewDocumentStore("", []string{"b4", "books"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { docs.Close() })
	if _, err := docs.Put("books", "84", []byte(`{"_id":"84","title":"Frankenstein"}`)); err != nil {
		t.Fatalf("seed book: %v", err)
	}

	srv := httptest.NewServer(store.NewHandler(docs, log.NullLogger()))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, storeURL string, m *metrics.Metrics, l *ratelimit.Limiter) http.Handler {
	t.Helper()
	svc, err := bundle.New(bundle.Options{
		BundleStoreURL: storeURL + "/b4",
		BookStoreURL:   storeURL + "/books",
		HTTPClient:     &http.Client{Timeout: 5 * time.Second},
		Logger:         log.NullLogger(),
		Metrics:        m,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewServer(svc, Options{Limiter: l, Metrics: m, Logger: log.NullLogger()}).Handler()
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return doc
}

func TestBundleLifecycle(t *testing.T) {
	h := newTestServer(t, newStoreServer(t).URL, nil, nil)

	rr := serve(h, http.MethodPost, "/api/bundle?name=Classics")
	assert.Equal(t, rr.Code, http.StatusCreated)
	created := decodeMap(t, rr)
	id, _ := created["_id"].(string)
	if id == "" {
		t.Fatalf("create returned no id: %s", rr.Body.String())
	}
	assert.Equal(t, created["name"], "Classics")
	assert.Equal(t, created["type"], "bundle")

	rr = serve(h, http.MethodPut, "/api/bundle/"+id+"/book/84")
	assert.Equal(t, rr.Code, http.StatusOK)

	rr = serve(h, http.MethodPut, "/api/bundle/"+id+"/name/Gothic")
	assert.Equal(t, rr.Code, http.StatusOK)

	rr = serve(h, http.MethodGet, "/api/bundle/"+id)
	assert.Equal(t, rr.Code, http.StatusOK)
	fetched := decodeMap(t, rr)
	assert.Equal(t, fetched["_id"], id)
	assert.Equal(t, fetched["name"], "Gothic")
	assert.Equal(t, fetched["books"], map[string]any{"84": "Frankenstein"})

	rr = serve(h, http.MethodGet, "/api/bundle/"+id+"/books?q=frank")
	assert.Equal(t, rr.Code, http.StatusOK)
	assert.Equal(t, rr.Body.String(), `[{"id":"84","title":"Frankenstein"}]`)

	rr = serve(h, http.MethodDelete, "/api/bundle/"+id+"/book/84")
	assert.Equal(t, rr.Code, http.StatusOK)

	rr = serve(h, http.MethodGet, "/api/bundle/"+id)
	assert.Equal(t, decodeMap(t, rr)["books"], map[string]any{})
}

func TestRemoveMissingBookConflicts(t *testing.T) {
	h := newTestServer(t, newStoreServer(t).URL, nil, nil)

	rr := serve(h, http.MethodPost, "/api/bundle?name=Classics")
	id, _ := decodeMap(t, rr)["_id"].(string)

	rr = serve(h, http.MethodDelete, "/api/bundle/"+id+"/book/999")
	assert.Equal(t, rr.Code, http.StatusConflict)
	assert.Equal(t, rr.Body.String(), `{"error":"conflict","reason":"Bundle does not contain that book."}`)
}

func TestStoreErrorsPassThrough(t *testing.T) {
	h := newTestServer(t, newStoreServer(t).URL, nil, nil)

	rr := serve(h, http.MethodGet, "/api/bundle/nope")
	assert.Equal(t, rr.Code, http.StatusNotFound)
	assert.Equal(t, rr.Body.String(), `{"error":"not_found","reason":"missing"}`)

	rr = serve(h, http.MethodPost, "/api/bundle?name=Classics")
	id, _ := decodeMap(t, rr)["_id"].(string)

	// unknown book: the book store's 404 is relayed and the bundle is untouched
	rr = serve(h, http.MethodPut, "/api/bundle/"+id+"/book/999")
	assert.Equal(t, rr.Code, http.StatusNotFound)
	assert.Equal(t, rr.Body.String(), `{"error":"not_found","reason":"missing"}`)

	rr = serve(h, http.MethodGet, "/api/bundle/"+id)
	assert.Equal(t, decodeMap(t, rr)["books"], map[string]any{})
}

func TestUnreachableStoreIsBadGateway(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	h := newTestServer(t, url, nil, nil)

	rr := serve(h, http.MethodPost, "/api/bundle?name=Classics")
	assert.Equal(t, rr.Code, http.StatusBadGateway)
	assert.Equal(t, rr.Body.String(), `{"error":"bad_gateway","reason":"ECONNREFUSED"}`)
}

func TestHealthAndRequestID(t *testing.T) {
	h := newTestServer(t, newStoreServer(t).URL, nil, nil)

	rr := serve(h, http.MethodGet, "/health")
	assert.Equal(t, rr.Code, http.StatusOK)
	assert.Equal(t, rr.Body.String(), `{"status":"ok"}`)
	assert.Equal(t, len(rr.Header().Get(requestIDHeader)), 26)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, rr.Header().Get(requestIDHeader), "abc")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newStoreServer(t)

	h := newTestServer(t, srv.URL, nil, nil)
	assert.Equal(t, serve(h, http.MethodGet, "/metrics").Code, http.StatusNotFound)

	h = newTestServer(t, srv.URL, metrics.New(), nil)
	serve(h, http.MethodPost, "/api/bundle?name=Classics")

	rr := serve(h, http.MethodGet, "/metrics")
	assert.Equal(t, rr.Code, http.StatusOK)
	body := rr.Body.String()
	assert.Equal(t, strings.Contains(body, `b4_operations_total{operation="create",outcome="success"} 1`), true)
	assert.Equal(t, strings.Contains(body, `b4_remote_call_duration_seconds_count{method="POST",store="bundles"} 1`), true)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, newStoreServer(t).URL, nil, ratelimit.New(1, 1, time.Minute))

	assert.Equal(t, serve(h, http.MethodGet, "/health").Code, http.StatusOK)

	rr := serve(h, http.MethodGet, "/health")
	assert.Equal(t, rr.Code, http.StatusTooManyRequests)
	assert.Equal(t, rr.Body.String(), `{"error":"too_many_requests","reason":"Rate limit exceeded."}`)
}

// stubOps lets a test control what each operation does
type stubOps struct {
	run func(ctx context.Context) pipeline.Result
}

func (s stubOps) Create(ctx context.Context, _ string) pipeline.Result       { return s.run(ctx) }
func (s stubOps) Fetch(ctx context.Context, _ string) pipeline.Result        { return s.run(ctx) }
func (s stubOps) Rename(ctx context.Context, _, _ string) pipeline.Result    { return s.run(ctx) }
func (s stubOps) AddBook(ctx context.Context, _, _ string) pipeline.Result   { return s.run(ctx) }
func (s stubOps) RemoveBook(ctx context.Context, _, _ string) pipeline.Result { return s.run(ctx) }
func (s stubOps) SearchBooks(ctx context.Context, _, _ string) pipeline.Result {
	return s.run(ctx)
}

func TestHandlerPanicIsBadGateway(t *testing.T) {
	ops := stubOps{run: func(context.Context) pipeline.Result { panic("boom") }}
	h := NewServer(ops, Options{Logger: log.NullLogger()}).Handler()

	rr := serve(h, http.MethodGet, "/api/bundle/b1")
	assert.Equal(t, rr.Code, http.StatusBadGateway)
	assert.Equal(t, rr.Body.String(), `{"error":"bad_gateway","reason":"EPANIC"}`)
}

func TestOperationOutlivesClientDisconnect(t *testing.T) {
	var opErr error
	ops := stubOps{run: func(ctx context.Context) pipeline.Result {
		opErr = ctx.Err()
		return pipeline.Result{Kind: pipeline.Success, Status: http.StatusOK, Body: []byte(`{}`)}
	}}
	h := NewServer(ops, Options{Logger: log.NullLogger()}).Handler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/bundle/b1", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, rr.Code, http.StatusOK)
	assert.Equal(t, opErr, nil)
}

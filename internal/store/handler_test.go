package store

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	s, err := NewDocumentStore("", []string{"b4", "books"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewHandler(s, nil)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateAssignsID(t *testing.T) {
	h := newTestHandler(t)

	rr := do(h, http.MethodPost, "/b4", `{"type":"bundle","name":"Classics","books":{}}`)
	assert.Equal(t, rr.Code, http.StatusCreated)

	var doc map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, _ := doc["_id"].(string)
	assert.Equal(t, len(id), 26)
	assert.Equal(t, doc["name"], "Classics")

	got := do(h, http.MethodGet, "/b4/"+id, "")
	assert.Equal(t, got.Code, http.StatusOK)
	assert.Equal(t, got.Body.String(), rr.Body.String())
}

func TestHandlerCreateWithIDConflicts(t *testing.T) {
	h := newTestHandler(t)

	assert.Equal(t, do(h, http.MethodPost, "/books", `{"_id":"84","title":"Frankenstein"}`).Code, http.StatusCreated)

	rr := do(h, http.MethodPost, "/books", `{"_id":"84","title":"Other"}`)
	assert.Equal(t, rr.Code, http.StatusConflict)
	assert.Equal(t, rr.Body.String(), `{"error":"conflict","reason":"Document update conflict."}`)
}

func TestHandlerGetMissing(t *testing.T) {
	h := newTestHandler(t)

	rr := do(h, http.MethodGet, "/b4/nope", "")
	assert.Equal(t, rr.Code, http.StatusNotFound)
	assert.Equal(t, rr.Body.String(), `{"error":"not_found","reason":"missing"}`)

	rr = do(h, http.MethodGet, "/nodb/nope", "")
	assert.Equal(t, rr.Code, http.StatusNotFound)
	assert.Equal(t, rr.Body.String(), `{"error":"not_found","reason":"Database does not exist."}`)
}

func TestHandlerPut(t *testing.T) {
	h := newTestHandler(t)

	rr := do(h, http.MethodPut, "/b4/b1", `{"_id":"ignored","name":"Classics","books":{}}`)
	assert.Equal(t, rr.Code, http.StatusCreated)
	assert.Equal(t, rr.Body.String(), `{"_id":"b1","books":{},"name":"Classics"}`)

	rr = do(h, http.MethodPut, "/b4/b1", `{"name":"Gothic","books":{"345":"Dracula"}}`)
	assert.Equal(t, rr.Code, http.StatusOK)

	got := do(h, http.MethodGet, "/b4/b1", "")
	assert.Equal(t, got.Body.String(), `{"_id":"b1","books":{"345":"Dracula"},"name":"Gothic"}`)
}

func TestHandlerRejectsNonObjects(t *testing.T) {
	h := newTestHandler(t)

	for _, body := range []string{`[]`, `null`, `{`, `"x"`} {
		rr := do(h, http.MethodPut, "/b4/b1", body)
		assert.Equal(t, rr.Code, http.StatusBadRequest)
	}
	rr := do(h, http.MethodPost, "/b4", `{"_id":42}`)
	assert.Equal(t, rr.Code, http.StatusBadRequest)
}

package store

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const jsonContentType = "application/json; charset=utf-8"

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

type handler struct {
	store  *DocumentStore
	logger *slog.Logger
}

// NewHandler serves the store over HTTP in the shape the bundle API expects:
//
//	POST /:db       create a document, 201 + the stored document
//	GET  /:db/:id   200 + document, or 404
//	PUT  /:db/:id   replace a document, 201 when new, 200 otherwise
func NewHandler(store *DocumentStore, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{store: store, logger: logger}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.POST("/:db", h.create)
	engine.GET("/:db/:id", h.get)
	engine.PUT("/:db/:id", h.put)
	return engine
}

func (h *handler) create(c *gin.Context) {
	db := c.Param("db")
	if !h.store.HasDatabase(db) {
		writeError(c, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}

	doc, ok := readDocument(c)
	if !ok {
		return
	}

	id := ""
	if raw, found := doc["_id"]; found {
		if err := json.Unmarshal(raw, &id); err != nil || id == "" {
			writeError(c, http.StatusBadRequest, "bad_request", "Document id must be a non-empty string.")
			return
		}
	} else {
		id = strings.ToLower(ulid.Make().String())
	}

	data, err := withID(doc, id)
	if err != nil {
		h.fail(c, "encode document", err)
		return
	}

	if err := h.store.Insert(db, id, data); err != nil {
		if errors.Is(err, ErrExists) {
			writeError(c, http.StatusConflict, "conflict", "Document update conflict.")
			return
		}
		h.fail(c, "insert document", err)
		return
	}

	h.logger.Debug("document created", "db", db, "id", id)
	c.Data(http.StatusCreated, jsonContentType, data)
}

func (h *handler) get(c *gin.Context) {
	db, id := c.Param("db"), c.Param("id")
	if !h.store.HasDatabase(db) {
		writeError(c, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}

	data, found, err := h.store.Get(db, id)
	if err != nil {
		h.fail(c, "get document", err)
		return
	}
	if !found {
		writeError(c, http.StatusNotFound, "not_found", "missing")
		return
	}
	c.Data(http.StatusOK, jsonContentType, data)
}

func (h *handler) put(c *gin.Context) {
	db, id := c.Param("db"), c.Param("id")
	if !h.store.HasDatabase(db) {
		writeError(c, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}

	doc, ok := readDocument(c)
	if !ok {
		return
	}
	data, err := withID(doc, id)
	if err != nil {
		h.fail(c, "encode document", err)
		return
	}

	created, err := h.store.Put(db, id, data)
	if err != nil {
		h.fail(c, "put document", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.logger.Debug("document stored", "db", db, "id", id, "created", created)
	c.Data(status, jsonContentType, data)
}

func (h *handler) fail(c *gin.Context, what string, err error) {
	h.logger.Error("docstore failure", "op", what, "error", err)
	writeError(c, http.StatusInternalServerError, "internal_error", err.Error())
}

// readDocument parses the request body as a JSON object, answering 400 if it is not one
func readDocument(c *gin.Context) (map[string]json.RawMessage, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "Could not read request body.")
		return nil, false
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		writeError(c, http.StatusBadRequest, "bad_request", "Request body must be a JSON object.")
		return nil, false
	}
	return doc, true
}

func withID(doc map[string]json.RawMessage, id string) ([]byte, error) {
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	doc["_id"] = rawID
	return json.Marshal(doc)
}

func writeError(c *gin.Context, status int, kind, reason string) {
	data, _ := json.Marshal(errorBody{Error: kind, Reason: reason})
	c.Data(status, jsonContentType, data)
}

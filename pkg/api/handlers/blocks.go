package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/bufpool"
	"github.com/marmos91/dittocache/pkg/cache"
)

// BlockHandler serves block reads and writes against named caches.
type BlockHandler struct {
	runtime      Runtime
	maxBlockSize int64
}

// NewBlockHandler creates a block handler. Upload bodies larger than
// maxBlockSize are rejected with 413.
func NewBlockHandler(rt Runtime, maxBlockSize int64) *BlockHandler {
	return &BlockHandler{runtime: rt, maxBlockSize: maxBlockSize}
}

// PutResponse is the response body for PUT /api/v1/caches/{cache}/blocks/*.
type PutResponse struct {
	Cache    string `json:"cache"`
	Key      string `json:"key"`
	Size     int    `json:"size"`
	Buffered bool   `json:"buffered"`
	Mode     string `json:"mode"`
}

// DeleteResponse is the response body for DELETE /api/v1/caches/{cache}/blocks/*.
type DeleteResponse struct {
	Cache string `json:"cache"`
	Key   string `json:"key"`
}

// resolve returns the cache and block key named by the request path,
// writing an error response when either is missing.
func (h *BlockHandler) resolve(w http.ResponseWriter, r *http.Request) (*cache.Cache, string, bool) {
	if h.runtime == nil {
		ServiceUnavailable(w, "runtime not initialized")
		return nil, "", false
	}

	name := chi.URLParam(r, "cache")
	c, ok := h.runtime.Cache(name)
	if !ok {
		NotFound(w, fmt.Sprintf("cache %q not found", name))
		return nil, "", false
	}

	key := chi.URLParam(r, "*")
	if key == "" {
		BadRequest(w, "block key is required")
		return nil, "", false
	}
	return c, key, true
}

// Put handles PUT /api/v1/caches/{cache}/blocks/*.
// The request body is the block data.
func (h *BlockHandler) Put(w http.ResponseWriter, r *http.Request) {
	c, key, ok := h.resolve(w, r)
	if !ok {
		return
	}

	data, release, err := h.readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RequestEntityTooLarge(w, fmt.Sprintf("block exceeds %d bytes", h.maxBlockSize))
			return
		}
		BadRequest(w, "failed to read request body")
		return
	}
	defer release()

	mode, err := c.Put(r.Context(), key, data)
	if err != nil {
		logger.WarnCtx(r.Context(), "Block write failed",
			logger.CacheName(c.Name()), logger.BlockKey(key), logger.Err(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(PutResponse{
		Cache:    c.Name(),
		Key:      key,
		Size:     len(data),
		Buffered: mode == cache.WriteBuffered,
		Mode:     mode.String(),
	}))
}

// Get handles GET /api/v1/caches/{cache}/blocks/*.
// The block is returned raw as application/octet-stream.
func (h *BlockHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, key, ok := h.resolve(w, r)
	if !ok {
		return
	}

	data, err := c.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Delete handles DELETE /api/v1/caches/{cache}/blocks/*.
func (h *BlockHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, key, ok := h.resolve(w, r)
	if !ok {
		return
	}

	if err := c.Delete(r.Context(), key); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(DeleteResponse{Cache: c.Name(), Key: key}))
}

// Keys handles GET /api/v1/caches/{cache}/keys - the buffered block keys,
// least recently used first.
func (h *BlockHandler) Keys(w http.ResponseWriter, r *http.Request) {
	if h.runtime == nil {
		ServiceUnavailable(w, "runtime not initialized")
		return
	}

	name := chi.URLParam(r, "cache")
	c, ok := h.runtime.Cache(name)
	if !ok {
		NotFound(w, fmt.Sprintf("cache %q not found", name))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(c.Keys()))
}

// readBody reads the upload into a pooled buffer when the length is known.
// release must be called once the block has been handed to the cache.
func (h *BlockHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, func(), error) {
	body := http.MaxBytesReader(w, r.Body, h.maxBlockSize)
	if r.ContentLength > h.maxBlockSize {
		return nil, nil, &http.MaxBytesError{Limit: h.maxBlockSize}
	}
	if r.ContentLength < 0 {
		data, err := io.ReadAll(body)
		return data, func() {}, err
	}

	buf, err := bufpool.ReadFull(body, int(r.ContentLength))
	if err != nil {
		return nil, nil, err
	}
	return buf, func() { bufpool.Put(buf) }, nil
}

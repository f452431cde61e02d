package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/izoe/variant-signer/internal/manifest"
	"github.com/izoe/variant-signer/internal/storage"
	"github.com/izoe/variant-signer/internal/variant"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Reloader re-resolves every variant and swaps the stored snapshot.
type Reloader interface {
	Reload() (storage.Snapshot, error)
}

// Handler serves read-only views of the resolved variants. Responses never
// carry password material.
type Handler struct {
	store    storage.Storage
	reloader Reloader
	app      variant.AppInfo
	root     string

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler. root is the project root used to shorten
// key store paths in responses.
func NewHandler(store storage.Storage, reloader Reloader, app variant.AppInfo, root string, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:    store,
		reloader: reloader,
		app:      app,
		root:     root,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	snap, loaded := h.store.Snapshot()
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
		Variants:  len(snap.Variants),
	}
	if !loaded {
		resp.Status = "unresolved"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListVariants(w http.ResponseWriter, r *http.Request) {
	_ = r
	snap, loaded := h.store.Snapshot()
	if !loaded {
		writeError(w, http.StatusServiceUnavailable, "Variants unavailable", "variants have not been resolved yet")
		return
	}

	m := manifest.Assemble(h.app, snap.Variants, h.root, snap.ResolvedAt, snap.Fingerprints)
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) handleGetVariant(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	snap, _ := h.store.Snapshot()
	v, err := snap.Find(name)
	if err != nil {
		if errors.Is(err, storage.ErrVariantNotFound) {
			writeError(w, http.StatusNotFound, "Variant not found", "no variant named "+name)
			return
		}
		writeInternalError(w, err)
		return
	}

	m := manifest.Assemble(h.app, []variant.Variant{v}, h.root, snap.ResolvedAt, snap.Fingerprints)
	writeJSON(w, http.StatusOK, m.Variants[0])
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	_ = r
	if h.reloader == nil {
		writeError(w, http.StatusNotImplemented, "Reload unavailable", "no reloader configured")
		return
	}

	snap, err := h.reloader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Resolution failed", err.Error(),
			"previous variants remain active; fix the signing configuration and retry")
		return
	}

	resp := reloadResponse{
		Variants:   len(snap.Variants),
		ResolvedAt: snap.ResolvedAt,
		Message:    "Variants resolved successfully",
	}
	writeJSON(w, http.StatusOK, resp)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type reloadResponse struct {
	Variants   int       `json:"variants"`
	ResolvedAt time.Time `json:"resolvedAt"`
	Message    string    `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Variants  int       `json:"variants"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}

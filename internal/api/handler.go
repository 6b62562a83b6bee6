// Package api exposes the chat service over HTTP. The handlers are a
// thin wrapper: they validate input, drive the session manager and
// response generator, and persist completed exchanges to the durable
// store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/chatcore-dev/chatcore/pkg/observability"
	"github.com/chatcore-dev/chatcore/pkg/respond"
	"github.com/chatcore-dev/chatcore/pkg/session"
	"github.com/chatcore-dev/chatcore/pkg/thread"
)

// Handler serves the chat API.
type Handler struct {
	store    thread.Store
	sessions *session.Manager
	gen      *respond.Generator
}

// NewHandler creates the API handler.
func NewHandler(store thread.Store, sessions *session.Manager, gen *respond.Generator) *Handler {
	return &Handler{
		store:    store,
		sessions: sessions,
		gen:      gen,
	}
}

// Routes returns the HTTP handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", h.instrument("/v1/chat", h.handleOneShot))
	mux.HandleFunc("POST /v1/threads", h.instrument("/v1/threads", h.handleCreateThread))
	mux.HandleFunc("GET /v1/threads", h.instrument("/v1/threads", h.handleListThreads))
	mux.HandleFunc("POST /v1/threads/{id}/messages", h.instrument("/v1/threads/messages", h.handleSendMessage))
	mux.HandleFunc("DELETE /v1/threads/{id}", h.instrument("/v1/threads/delete", h.handleDeleteThread))

	return mux
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		observability.RecordHTTPRequest(r.Method, path, strconv.Itoa(rec.status), time.Since(start))
	}
}

type chatRequest struct {
	Message     string `json:"message"`
	Instruction string `json:"instruction,omitempty"`
}

type chatResponse struct {
	Reply    string `json:"reply"`
	Degraded bool   `json:"degraded,omitempty"`
}

type createThreadRequest struct {
	UserID  string `json:"userId"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Reply    string `json:"reply"`
	Title    string `json:"title,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

func (h *Handler) handleOneShot(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	result := h.gen.GenerateOneShot(r.Context(), req.Message, req.Instruction)
	if !result.Success {
		log.Printf("[api] one-shot failed: %v", result.Err)
		observability.RecordFallback("chat")
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Reply:    h.gen.Fallback().Apply(result),
		Degraded: !result.Success,
	})
}

func (h *Handler) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	title := req.Title
	if title == "" && req.Message != "" {
		title = h.gen.GenerateTitle(r.Context(), req.Message)
	}

	t, err := h.store.CreateThread(r.Context(), req.UserID, title)
	if err != nil {
		log.Printf("[api] create thread: %v", err)
		writeError(w, http.StatusInternalServerError, "could not create thread")
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleListThreads(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	threads, err := h.store.ListThreads(r.Context(), userID, limit)
	if err != nil {
		log.Printf("[api] list threads: %v", err)
		writeError(w, http.StatusInternalServerError, "could not list threads")
		return
	}

	writeJSON(w, http.StatusOK, threads)
}

// handleSendMessage drives one conversation turn end to end: resolve
// the session (rehydrating from the durable store when the cache lost
// it), generate the reply, persist both turns durably, and title the
// thread on its first exchange.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()

	t, err := h.store.GetThread(ctx, threadID)
	if err != nil {
		if errors.Is(err, thread.ErrThreadNotFound) {
			writeError(w, http.StatusNotFound, "thread not found")
			return
		}
		log.Printf("[api] get thread %s: %v", threadID, err)
		writeError(w, http.StatusInternalServerError, "could not load thread")
		return
	}

	// Resolve the session and send under the per-thread lock, so a
	// concurrent send for the same thread cannot interleave with the
	// rebuild. When the cache has no usable entry the session is rebuilt
	// from durable history, and that rebuilt handle is the one the model
	// sees even if the cache stays unreachable.
	unlock := h.sessions.Lock(threadID)
	handle, rebuilt, err := h.sessions.GetOrRebuild(ctx, threadID, "", func(ctx context.Context) ([]thread.Turn, error) {
		history, err := h.store.LoadThreadHistory(ctx, threadID)
		if err != nil {
			return nil, err
		}
		turns := make([]thread.Turn, 0, len(history))
		for _, m := range history {
			turns = append(turns, m.Turn())
		}
		return turns, nil
	})
	if err != nil {
		unlock()
		log.Printf("[api] load history for %s: %v", threadID, err)
		writeError(w, http.StatusInternalServerError, "could not load thread history")
		return
	}
	firstExchange := rebuilt && handle.Len() == 0

	result := h.gen.SendWithHandle(ctx, handle, req.Message)
	unlock()

	if !result.Success {
		log.Printf("[api] send to thread %s failed: %v", threadID, result.Err)
		observability.RecordFallback("chat")
	}
	reply := h.gen.Fallback().Apply(result)

	// The conversation accumulates turns even when the reply is the
	// degraded fallback. If a turn cannot be persisted, the cached
	// session now holds an exchange the store lacks, so drop it and let
	// the next send rebuild from the store.
	if _, err := h.store.AppendMessage(ctx, threadID, thread.RoleUser, req.Message); err != nil {
		log.Printf("[api] persist user turn for %s: %v", threadID, err)
		h.invalidateSession(ctx, threadID)
		writeError(w, http.StatusInternalServerError, "could not persist message")
		return
	}
	if _, err := h.store.AppendMessage(ctx, threadID, thread.RoleAssistant, reply); err != nil {
		log.Printf("[api] persist assistant turn for %s: %v", threadID, err)
		h.invalidateSession(ctx, threadID)
		writeError(w, http.StatusInternalServerError, "could not persist message")
		return
	}

	resp := messageResponse{Reply: reply, Degraded: !result.Success}

	if firstExchange && t.Title == "" {
		title := h.gen.GenerateTitle(ctx, req.Message)
		if err := h.store.SetTitle(ctx, threadID, title); err != nil {
			log.Printf("[api] set title for %s: %v", threadID, err)
		} else {
			resp.Title = title
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	if err := h.store.DeleteThread(r.Context(), threadID); err != nil {
		if errors.Is(err, thread.ErrThreadNotFound) {
			writeError(w, http.StatusNotFound, "thread not found")
			return
		}
		log.Printf("[api] delete thread %s: %v", threadID, err)
		writeError(w, http.StatusInternalServerError, "could not delete thread")
		return
	}

	// Proactive invalidation: a reused identifier must never observe
	// the deleted thread's session state.
	h.invalidateSession(r.Context(), threadID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) invalidateSession(ctx context.Context, threadID string) {
	if err := h.sessions.Invalidate(ctx, threadID); err != nil {
		log.Printf("[api] invalidate session for %s: %v", threadID, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

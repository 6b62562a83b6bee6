package session

import (
	"sync"

	"github.com/chatcore-dev/chatcore/pkg/thread"
)

// Handle is a live conversation session: replay-ready history plus the
// system instruction steering the assistant. It is an explicit tagged
// type with a defined serialize/rehydrate pair, decoupled from any LLM
// client's internal session representation.
//
// A Handle is safe for concurrent use, but callers that perform a
// read-modify-write cycle against the cache must serialize per thread
// (see Manager.Lock).
type Handle struct {
	threadID          string
	systemInstruction string
	createdAt         int64

	mu       sync.RWMutex
	history  []Content
	lastUsed int64
}

// newHandle creates a handle with the given history, which is adopted
// (not copied).
func newHandle(threadID, instruction string, history []Content, createdAt int64) *Handle {
	if history == nil {
		history = make([]Content, 0)
	}
	return &Handle{
		threadID:          threadID,
		systemInstruction: instruction,
		createdAt:         createdAt,
		history:           history,
		lastUsed:          nowMillis(),
	}
}

// rehydrate reconstructs a live handle from its cached form.
func rehydrate(s *SerializedSession) *Handle {
	h := newHandle(s.ThreadID, s.SystemInstruction, append([]Content(nil), s.History...), s.CreatedAt)
	if h.createdAt == 0 {
		h.createdAt = nowMillis()
	}
	return h
}

// ThreadID returns the owning thread's identifier.
func (h *Handle) ThreadID() string {
	return h.threadID
}

// SystemInstruction returns the instruction steering this session.
func (h *Handle) SystemInstruction() string {
	return h.systemInstruction
}

// Append adds a turn to the session history.
func (h *Handle) Append(t thread.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, contentFromTurn(t))
	h.lastUsed = nowMillis()
}

// History returns a copy of the session history in wire form.
func (h *Handle) History() []Content {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Content(nil), h.history...)
}

// Turns returns the session history translated back into domain turns.
func (h *Handle) Turns() []thread.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	turns := make([]thread.Turn, 0, len(h.history))
	for _, c := range h.history {
		turns = append(turns, thread.Turn{Role: domainRole(c.Role), Content: c.Text()})
	}
	return turns
}

// Len returns the number of turns in the session history.
func (h *Handle) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.history)
}

// touch refreshes the last-used timestamp.
func (h *Handle) touch() {
	h.mu.Lock()
	h.lastUsed = nowMillis()
	h.mu.Unlock()
}

// Serialize produces the cacheable form of the session.
func (h *Handle) Serialize() *SerializedSession {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return &SerializedSession{
		ThreadID:          h.threadID,
		History:           append([]Content(nil), h.history...),
		SystemInstruction: h.systemInstruction,
		CreatedAt:         h.createdAt,
		LastUsed:          h.lastUsed,
	}
}

// Package session provides conversation-session continuity for chat
// threads. A thread's live conversation state is serialized into a
// fast key-value cache keyed by thread ID, with a sliding expiry, and
// transparently rebuilt from the durable store on a miss. The cache is
// a derived view of the durable store, never an independent writer of
// conversation content.
package session

import (
	"time"

	"github.com/chatcore-dev/chatcore/pkg/thread"
)

// Wire-format roles understood by the model API.
const (
	// WireRoleUser is the wire role for user turns.
	WireRoleUser = "user"
	// WireRoleModel is the wire role for assistant turns.
	WireRoleModel = "model"
)

// Part is a single content fragment of a turn.
type Part struct {
	Text string `json:"text"`
}

// Content is one conversation turn in wire form.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Text concatenates the content's text parts.
func (c Content) Text() string {
	var s string
	for _, p := range c.Parts {
		s += p.Text
	}
	return s
}

// SerializedSession is the cacheable form of a conversation session.
// History length and ordering must exactly mirror the durable store's
// message sequence for the thread at the time the session was built.
type SerializedSession struct {
	ThreadID          string    `json:"threadId"`
	History           []Content `json:"history"`
	SystemInstruction string    `json:"systemInstruction,omitempty"`
	CreatedAt         int64     `json:"createdAt"`
	LastUsed          int64     `json:"lastUsed"`
}

// wireRole translates a domain role into the model API's vocabulary.
func wireRole(r thread.Role) string {
	if r == thread.RoleAssistant {
		return WireRoleModel
	}
	return WireRoleUser
}

// domainRole translates a wire role back into the domain vocabulary.
func domainRole(role string) thread.Role {
	if role == WireRoleModel {
		return thread.RoleAssistant
	}
	return thread.RoleUser
}

// contentFromTurn converts a single turn to wire form.
func contentFromTurn(t thread.Turn) Content {
	return Content{
		Role:  wireRole(t.Role),
		Parts: []Part{{Text: t.Content}},
	}
}

// historyFromTurns converts an ordered turn list to wire form,
// preserving order.
func historyFromTurns(turns []thread.Turn) []Content {
	history := make([]Content, 0, len(turns))
	for _, t := range turns {
		history = append(history, contentFromTurn(t))
	}
	return history
}

// nowMillis returns the current time as epoch milliseconds. Timestamps
// on sessions are observability data, not wall-clock-critical.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Package respond produces assistant text for chat threads: session
// bound completions, one-shot completions for brand-new threads, and
// thread titles. Every failure surfaces as a structured Result; the
// generator makes at most one model attempt per call and leaves
// retries to its callers.
package respond

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/chatcore-dev/chatcore/internal/llm/provider"
	obs "github.com/chatcore-dev/chatcore/internal/observability"
	"github.com/chatcore-dev/chatcore/pkg/observability"
	"github.com/chatcore-dev/chatcore/pkg/session"
	"github.com/chatcore-dev/chatcore/pkg/thread"
)

// Generation constants, fixed for all calls. Callers cannot override
// them per call.
const (
	ChatTemperature  = 0.7
	ChatMaxTokens    = 1000
	TitleTemperature = 0.3
	TitleMaxTokens   = 50
)

// DefaultLLMTimeout bounds a single model call when no timeout is
// configured. Cancellation propagates from the inbound request context.
const DefaultLLMTimeout = 60 * time.Second

const titleInstruction = "Generate a concise title of at most five words for a conversation " +
	"that begins with the following message. Reply with the title only, no quotes."

// Config holds generator configuration.
type Config struct {
	// Model is the model used for chat completions.
	Model string
	// TitleModel is the model used for title generation (defaults to Model).
	TitleModel string
	// LLMTimeout bounds each model call (default: DefaultLLMTimeout).
	LLMTimeout time.Duration
	// RateLimit is the process-wide model call budget in calls/second
	// (0 disables limiting).
	RateLimit float64
	// RateBurst is the limiter burst size (default: 1 when limiting).
	RateBurst int
	// Fallback is the degraded-response policy (default: DefaultFallback).
	Fallback Fallback
}

// Generator turns inbound chat messages into assistant replies. The
// provider and session manager are injected once at construction and
// shared across requests.
type Generator struct {
	provider   provider.Provider
	sessions   *session.Manager
	limiter    *rate.Limiter
	timeout    time.Duration
	model      string
	titleModel string
	fallback   Fallback
}

// NewGenerator creates a response generator.
func NewGenerator(p provider.Provider, sessions *session.Manager, cfg Config) *Generator {
	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}

	titleModel := cfg.TitleModel
	if titleModel == "" {
		titleModel = cfg.Model
	}

	fallback := cfg.Fallback
	if fallback.ChatMessage == "" {
		fallback = DefaultFallback
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Generator{
		provider:   p,
		sessions:   sessions,
		limiter:    limiter,
		timeout:    timeout,
		model:      cfg.Model,
		titleModel: titleModel,
		fallback:   fallback,
	}
}

// Fallback returns the generator's degraded-response policy.
func (g *Generator) Fallback() Fallback {
	return g.fallback
}

// SendToSession resolves the thread's session, sends the message with
// the full replayed history, and on success writes the updated session
// back to the cache. The per-thread lock is held across the whole
// read-modify-write cycle so concurrent sends for one thread cannot
// clobber each other. On failure nothing is written: the cache never
// holds a partial exchange.
func (g *Generator) SendToSession(ctx context.Context, threadID, message string) Result {
	unlock := g.sessions.Lock(threadID)
	defer unlock()

	handle := g.sessions.GetOrCreate(ctx, threadID, "")
	return g.send(ctx, handle, message)
}

// SendWithHandle sends the message through an already-resolved session
// handle. Callers that rebuild a session themselves (from durable
// history) use this so the rebuilt handle is the one the model sees,
// even when its cache write was dropped. The caller holds the
// per-thread lock (Manager.Lock) across resolving the handle and this
// call.
func (g *Generator) SendWithHandle(ctx context.Context, handle *session.Handle, message string) Result {
	return g.send(ctx, handle, message)
}

func (g *Generator) send(ctx context.Context, handle *session.Handle, message string) Result {
	threadID := handle.ThreadID()

	ctx, span := obs.StartSpan(ctx, "respond.Send",
		trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	messages := buildMessages(handle.SystemInstruction(), handle.History(), message)
	observability.RecordSessionHistoryLength(handle.Len() + 1)

	resp, err := g.complete(ctx, "chat", provider.CompletionRequest{
		Messages:    messages,
		Model:       g.model,
		Temperature: ChatTemperature,
		MaxTokens:   ChatMaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		return failure(fmt.Errorf("chat completion for thread %s: %w", threadID, err))
	}

	handle.Append(thread.Turn{Role: thread.RoleUser, Content: message})
	handle.Append(thread.Turn{Role: thread.RoleAssistant, Content: resp.Content})
	g.sessions.Save(ctx, handle)

	return success(resp.Content)
}

// GenerateOneShot produces a stateless single completion, with no
// session involved. Used for the very first message of a brand-new
// thread before any session exists.
func (g *Generator) GenerateOneShot(ctx context.Context, message, instruction string) Result {
	ctx, span := obs.StartSpan(ctx, "respond.GenerateOneShot")
	defer span.End()

	if instruction == "" {
		instruction = session.DefaultSystemInstruction
	}

	resp, err := g.complete(ctx, "oneshot", provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: "system", Content: instruction},
			{Role: "user", Content: message},
		},
		Model:       g.model,
		Temperature: ChatTemperature,
		MaxTokens:   ChatMaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		return failure(fmt.Errorf("one-shot completion: %w", err))
	}

	return success(resp.Content)
}

// GenerateTitle derives a short label for a thread from its seed
// message. It never fails observably: on any model failure or empty
// output it falls back to the first three words of the seed.
func (g *Generator) GenerateTitle(ctx context.Context, seedMessage string) string {
	ctx, span := obs.StartSpan(ctx, "respond.GenerateTitle")
	defer span.End()

	resp, err := g.complete(ctx, "title", provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: "system", Content: titleInstruction},
			{Role: "user", Content: seedMessage},
		},
		Model:       g.titleModel,
		Temperature: TitleTemperature,
		MaxTokens:   TitleMaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		log.Printf("[respond] title generation failed, using fallback: %v", err)
		observability.RecordFallback("title")
		return FallbackTitle(seedMessage)
	}

	title := strings.Trim(strings.TrimSpace(resp.Content), `"`)
	if title == "" {
		observability.RecordFallback("title")
		return FallbackTitle(seedMessage)
	}

	return title
}

// complete performs a single rate-limited, deadline-bounded model call.
func (g *Generator) complete(ctx context.Context, kind string, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.provider.CreateCompletion(callCtx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordLLMCall(g.provider.Name(), kind, status, time.Since(start))

	return resp, err
}

// buildMessages assembles the provider message list: system
// instruction first, then the replayed history in order, then the new
// user message.
func buildMessages(instruction string, history []session.Content, message string) []provider.Message {
	messages := make([]provider.Message, 0, len(history)+2)

	if instruction != "" {
		messages = append(messages, provider.Message{Role: "system", Content: instruction})
	}

	for _, c := range history {
		role := "user"
		if c.Role == session.WireRoleModel {
			role = "assistant"
		}
		messages = append(messages, provider.Message{Role: role, Content: c.Text()})
	}

	return append(messages, provider.Message{Role: "user", Content: message})
}

// FallbackTitle returns the deterministic title fallback: the first
// three words of the seed message (fewer if the seed is shorter).
func FallbackTitle(seedMessage string) string {
	words := strings.Fields(seedMessage)
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ")
}

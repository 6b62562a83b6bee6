package provider

import (
	"context"
	"errors"
	"testing"
)

func TestRegistry(t *testing.T) {
	RegisterFactory("stub", func(config map[string]any) (Provider, error) {
		return NewMockProvider("stub"), nil
	})

	p, err := New("stub", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "stub" {
		t.Errorf("Name = %q, want stub", p.Name())
	}

	if _, err := New("missing", nil); err == nil {
		t.Fatal("expected error for unregistered provider")
	}

	names := List()
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	for _, want := range []string{"stub", "gemini", "openai"} {
		if !found[want] {
			t.Errorf("List() missing %q (got %v)", want, names)
		}
	}
}

func TestProviderError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewProviderError("gemini", ErrorCodeServerError, "backend unavailable", cause)

	if got := err.Error(); got != "gemini error: backend unavailable" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the original error")
	}
	if !err.IsRetryable {
		t.Error("server errors should be retryable")
	}

	if NewProviderError("openai", ErrorCodeAuthentication, "bad key", nil).IsRetryable {
		t.Error("authentication errors should not be retryable")
	}
}

func TestMockProvider_Scripted(t *testing.T) {
	m := NewMockProvider("mock")
	m.Responses = []*CompletionResponse{{Content: "first"}}
	m.Errors = []error{nil, errors.New("second fails")}

	resp, err := m.CreateCompletion(context.Background(), CompletionRequest{Model: "m"})
	if err != nil || resp.Content != "first" {
		t.Fatalf("first call = %v, %v", resp, err)
	}

	if _, err := m.CreateCompletion(context.Background(), CompletionRequest{}); err == nil {
		t.Fatal("expected scripted error on second call")
	}

	if len(m.Calls) != 2 {
		t.Errorf("Calls = %d, want 2", len(m.Calls))
	}
}

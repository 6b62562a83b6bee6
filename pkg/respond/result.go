package respond

// Result is the structured outcome of a generation call. Failures are
// reported here, never raised past the generator boundary: the caller
// decides whether to substitute the degraded-response text and carry
// the conversation on.
type Result struct {
	Success bool   `json:"success"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`

	// Err carries the underlying error for logging and inspection.
	Err error `json:"-"`
}

func success(text string) Result {
	return Result{Success: true, Text: text}
}

func failure(err error) Result {
	r := Result{Success: false, Err: err}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Fallback is the degraded-response policy: one place holding the
// user-visible text served when the model cannot answer, instead of
// ad hoc literals at each call site.
type Fallback struct {
	// ChatMessage is returned to the user when a chat completion fails.
	ChatMessage string
}

// DefaultFallback is the fallback policy used when none is configured.
var DefaultFallback = Fallback{
	ChatMessage: "I'm having trouble responding right now.",
}

// Apply returns the result's text on success, or the fallback chat
// message on failure. The conversation continues either way.
func (f Fallback) Apply(r Result) string {
	if r.Success {
		return r.Text
	}
	return f.ChatMessage
}

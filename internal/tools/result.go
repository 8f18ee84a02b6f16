package tools

import "fmt"

// Result is what a tool execution hands back to the agent loop. Output
// is fed to the model verbatim; Metadata is for logging and channels.
type Result struct {
	Output   string         `json:"output"`
	Success  bool           `json:"success"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewResult builds a successful result.
func NewResult(output string) *Result {
	return &Result{Output: output, Success: true}
}

// ErrorResult builds a failed result.
func ErrorResult(message string) *Result {
	return &Result{Output: message, Success: false}
}

// Errorf builds a failed result with a formatted message.
func Errorf(format string, args ...any) *Result {
	return &Result{Output: fmt.Sprintf(format, args...), Success: false}
}

// WithMeta attaches a metadata entry and returns the result for chaining.
func (r *Result) WithMeta(key string, value any) *Result {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
	return r
}

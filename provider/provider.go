package provider

import (
	"context"
	"errors"
	"fmt"
)

// Reason is the machine-readable failure code carried across the LLM
// boundary. Operators need to tell "never configured" apart from "the
// service had an outage", so the two are distinct codes.
type Reason string

const (
	ReasonMissingKey Reason = "missing_key"
	ReasonUpstream   Reason = "upstream_error"
)

// Error tags a provider failure with its Reason. Nothing beyond this type
// escapes the provider packages; callers map it with errors.As.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the failure code from a provider error, defaulting to
// upstream_error for anything untagged (e.g. context deadline).
func ReasonOf(err error) Reason {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ReasonUpstream
}

// Message is one turn of conversation history forwarded to the
// generation service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the contract for the external embedding + generation
// service. Both calls are fallible remote calls; they never panic past
// this boundary.
type Provider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Generate produces an answer from a system instruction, a final
	// user prompt and bounded prior history.
	Generate(ctx context.Context, system, prompt string, history []Message) (string, error)
}

package providers

import (
	"context"
	"errors"
)

var (
	// ErrModelDeclined means the model answered but refused the request
	// (refusal or content filter). It is not retryable.
	ErrModelDeclined = errors.New("model declined to answer")

	// ErrModelUnavailable means no answer was obtained: timeout, network
	// failure or provider error. Callers may retry.
	ErrModelUnavailable = errors.New("model unavailable")
)

// SafetyPreamble is the system-level framing sent with every model call.
// The guardrail filter still screens whatever comes back.
const SafetyPreamble = `You explain a patient's own health records to them in plain language.
Use short sentences a non-specialist can follow. Describe only what the supplied record data shows.
Do not diagnose, do not name a condition the patient may have, and do not tell the patient to start, stop or change any medication or dose.
When something looks important, suggest discussing it with their clinician.
Do not add a disclaimer; one is appended separately.`

// ModelRequest is one stateless completion call.
type ModelRequest struct {
	Prompt         string
	SystemPreamble string
	MaxTokens      int
	Temperature    float32
}

// ModelResponse is the raw, unguarded model text.
type ModelResponse struct {
	Text         string
	Model        string
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// ModelProvider defines the interface to the external language model.
type ModelProvider interface {
	// Complete returns the model text for a request. Errors wrap either
	// ErrModelDeclined or ErrModelUnavailable.
	Complete(ctx context.Context, req ModelRequest) (*ModelResponse, error)
}

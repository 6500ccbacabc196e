// Package translate defines the Provider interface for LLM-backed text
// translation.
//
// A provider is a thin chat client: it receives a system prompt and a user
// prompt built by the caller and returns the raw model output. Prompt
// construction, JSON schema validation, retries, and load balancing live in
// the translator pool; providers stay interchangeable behind this one call.
package translate

import "context"

// Provider is the abstraction over any chat-capable LLM backend used for
// translation.
//
// Implementations must be safe for concurrent use and should request strict
// JSON output (response_format json_object or equivalent) where the backend
// supports it. The returned string is handed to the pool's JSON validator
// as-is.
type Provider interface {
	// Name identifies the provider in logs and metrics (e.g., "openai/gpt-4o-mini").
	Name() string

	// Chat sends one system+user prompt pair and returns the raw completion
	// text.
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

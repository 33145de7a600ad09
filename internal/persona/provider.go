// Package persona implements the instant-match flow: a generative model
// produces a simulated peer identity conditioned on the local user's
// profile, then answers as that peer for the rest of the session. The
// model is a best-effort dependency: every failure path substitutes a
// local fallback instead of blocking the user.
package persona

import "context"

// Turn is one entry of a conversation history.
type Turn struct {
	// Role is "user" or "assistant".
	Role    string
	Content string
}

// Request carries one completion request to the model.
type Request struct {
	SystemInstruction string
	Turns             []Turn
	Temperature       float64
}

// Generator is the abstraction over the hosted generative model.
// Implementations must be safe for concurrent use.
type Generator interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Package provider abstracts the external generative services the translator
// and consensus engine depend on. Nothing in this package is trusted: every
// response is a candidate string that downstream engines must validate.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the only interface the rest of the router sees. Concrete
// vendor clients live behind it so no engine or translator ever imports a
// vendor SDK directly.
type Provider interface {
	// Generate sends a prompt pair and returns the raw completion text.
	// The caller's context deadline bounds the network call.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Name identifies the provider in evidence and audit events.
	Name() string
}

// ErrProvider marks transient provider failures (network, rate limit, auth).
// The translator treats any error wrapping ErrProvider as a signal to move
// to the next provider in the chain.
var ErrProvider = errors.New("provider error")

// Chain is an ordered list of providers tried first-to-last.
type Chain []Provider

// Names returns the provider names in chain order, for logging.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, p := range c {
		names[i] = p.Name()
	}
	return names
}

func providerErr(name string, err error) error {
	return fmt.Errorf("%s: %v: %w", name, err, ErrProvider)
}

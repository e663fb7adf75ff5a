// Package health gates request handling on backing-store connectivity.
// It replaces ambient global state with an injected checker that the
// HTTP layer consults per request.
package health

import "context"

// Checker reports whether the service's backing store is reachable.
type Checker interface {
	Healthy(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Healthy(ctx context.Context) error {
	return f(ctx)
}

// Package adapter defines the contract shared by the protocol adapters:
// connection parameters, authentication methods, and the error values the
// dispatcher and authentication machinery react to.
package adapter

import (
	"context"
	"errors"

	"github.com/dataway-dev/dataway/internal/routes"
)

// Common adapter errors.
var (
	// ErrNotConfigured is returned while an adapter has no usable server
	// or database settings. Non-fatal at startup; every call fails until
	// the configuration is corrected.
	ErrNotConfigured = errors.New("adapter not configured")

	// ErrUnavailable is returned after the connection retry budget is
	// exhausted. The adapter stays in this state until reconfigured.
	ErrUnavailable = errors.New("transport unavailable")

	// ErrQueueFull is returned when a call arrives while the connection
	// is still opening and the pending-call queue is at capacity.
	ErrQueueFull = errors.New("pending call queue full")

	// ErrClosed is returned for calls issued after the adapter is closed.
	ErrClosed = errors.New("adapter closed")
)

// AuthMethod selects the challenge handshake used when opening a
// connection.
type AuthMethod string

// Supported authentication methods.
const (
	// AuthTicket transmits the secret directly as a ticket.
	AuthTicket AuthMethod = "ticket"
	// AuthCRA signs a server-supplied nonce with the shared secret.
	AuthCRA AuthMethod = "wampcra"
)

// ChallengeFunc answers a transport authentication challenge. It receives
// the negotiated method and the server-supplied extra data and returns the
// signature to present.
type ChallengeFunc func(method string, extra map[string]any) (string, error)

// ConnectionParams carries the credentials an adapter connects with.
// Anonymous connections leave Principal and Secret empty. Challenge, when
// set, overrides the adapter's derived challenge handler.
type ConnectionParams struct {
	Principal string
	Secret    string
	Method    AuthMethod
	Anonymous bool
	Challenge ChallengeFunc
}

// Anonymous returns connection parameters for an unauthenticated session.
func Anonymous() ConnectionParams {
	return ConnectionParams{Anonymous: true, Method: AuthTicket}
}

// Adapter is the common protocol adapter contract. Configure replaces the
// connection parameters, tearing down and reopening any persistent
// connection. Execute runs one call described by the route entry.
type Adapter interface {
	Configure(params ConnectionParams)
	Execute(ctx context.Context, entry *routes.Entry, args map[string]any) (any, error)
	Close() error
}

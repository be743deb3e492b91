package session

import (
	"context"

	"github.com/google/uuid"
)

// Info describes a live session as reported by a Registry.
type Info struct {
	// CorrelationID ties the session back to the command that created it.
	CorrelationID string
	// Type is the session flavor, e.g. "shell" or "meterpreter".
	Type string
	// Via names the module or command that opened the session.
	Via string
	// Peer is the remote endpoint, when known.
	Peer string
}

// Registry enumerates currently live sessions. Implementations wrap whatever
// backend actually owns the sessions; the store only ever polls List.
type Registry interface {
	List(ctx context.Context) (map[string]Info, error)
}

// NewCorrelationID returns a fresh correlation id for tagging a command so
// the session it opens can be recognized later.
func NewCorrelationID() string {
	return uuid.NewString()
}

package runtime

import (
	"context"
	"fmt"

	"github.com/soralis-ops/sortie/pkg/executor"
	"github.com/soralis-ops/sortie/pkg/schema"
)

// dispatcher routes each command to the backend registered for its type.
// It implements executor.Primitive, so the engine stays backend-agnostic.
type dispatcher struct {
	backends map[string]executor.Primitive
}

func newDispatcher() *dispatcher {
	return &dispatcher{backends: make(map[string]executor.Primitive)}
}

// register binds a command type to its backend.
func (d *dispatcher) register(commandType string, backend executor.Primitive) {
	d.backends[commandType] = backend
}

// ExecCommand implements executor.Primitive.
func (d *dispatcher) ExecCommand(ctx context.Context, cmd schema.Command) (*executor.Result, error) {
	backend, ok := d.backends[cmd.Base().Type]
	if !ok {
		return nil, fmt.Errorf("no backend registered for command type %q", cmd.Base().Type)
	}
	return backend.ExecCommand(ctx, cmd)
}

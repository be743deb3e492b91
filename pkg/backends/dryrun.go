package backends

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soralis-ops/sortie/pkg/executor"
	"github.com/soralis-ops/sortie/pkg/schema"
)

// DryRun echoes commands without executing anything. Predicates and retry
// still run against the echoed output, so a playbook can be rehearsed
// end to end.
type DryRun struct {
	logger *slog.Logger
}

// NewDryRun creates a dry-run backend.
func NewDryRun(logger *slog.Logger) *DryRun {
	return &DryRun{logger: logger}
}

// ExecCommand implements executor.Primitive.
func (d *DryRun) ExecCommand(ctx context.Context, cmd schema.Command) (*executor.Result, error) {
	base := cmd.Base()
	d.logger.Info("dry-run", "type", base.Type, "cmd", base.Cmd)
	return &executor.Result{
		Stdout:     fmt.Sprintf("[dry-run] %s: %s", base.Type, base.Cmd),
		Returncode: 0,
	}, nil
}

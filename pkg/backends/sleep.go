package backends

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/soralis-ops/sortie/pkg/executor"
	"github.com/soralis-ops/sortie/pkg/schema"
)

// Sleep pauses playbook execution for a fixed number of seconds. It
// implements executor.Primitive.
type Sleep struct {
	logger *slog.Logger
}

// NewSleep creates a sleep backend.
func NewSleep(logger *slog.Logger) *Sleep {
	return &Sleep{logger: logger}
}

// ExecCommand blocks for the requested duration or until the context is
// cancelled, whichever comes first.
func (s *Sleep) ExecCommand(ctx context.Context, cmd schema.Command) (*executor.Result, error) {
	sl, ok := cmd.(*schema.SleepCommand)
	if !ok {
		return nil, fmt.Errorf("sleep backend received %q command", cmd.Base().Type)
	}

	seconds, err := strconv.Atoi(strings.TrimSpace(sl.Seconds))
	if err != nil || seconds < 0 {
		return nil, &executor.ConfigError{Field: "seconds", Value: sl.Seconds}
	}

	s.logger.Info("sleeping", "seconds", seconds)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(seconds) * time.Second):
	}

	return &executor.Result{Stdout: fmt.Sprintf("slept %d seconds", seconds), Returncode: 0}, nil
}

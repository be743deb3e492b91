// Package backends provides the concrete execution primitives the engine
// dispatches commands to: a local shell backend and a sleep backend.
package backends

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/soralis-ops/sortie/pkg/executor"
	"github.com/soralis-ops/sortie/pkg/guard"
	"github.com/soralis-ops/sortie/pkg/schema"
)

// DefaultShell interprets command lines when the playbook does not name one.
const DefaultShell = "/bin/sh"

// Shell runs commands through a local shell. It implements
// executor.Primitive.
type Shell struct {
	logger *slog.Logger
	guard  *guard.Guard
}

// NewShell creates a shell backend. A nil guard is permissive.
func NewShell(logger *slog.Logger, g *guard.Guard) *Shell {
	if g == nil {
		g, _ = guard.New(nil)
	}
	return &Shell{logger: logger, guard: g}
}

// ExecCommand runs the command line through the configured shell and captures
// combined stdout/stderr. A non-zero exit status is a normal Result; failures
// to spawn at all are recoverable ExecErrors so the pipeline can classify
// them.
func (s *Shell) ExecCommand(ctx context.Context, cmd schema.Command) (*executor.Result, error) {
	sh, ok := cmd.(*schema.ShellCommand)
	if !ok {
		return nil, fmt.Errorf("shell backend received %q command", cmd.Base().Type)
	}

	if err := s.guard.CheckCommand(sh.Cmd); err != nil {
		return nil, err
	}

	shell := sh.Shell
	if shell == "" {
		shell = DefaultShell
	}

	proc := exec.CommandContext(ctx, shell, "-c", sh.Cmd)
	proc.Env = os.Environ()
	for k, v := range sh.Env {
		proc.Env = append(proc.Env, k+"="+v)
	}

	var output bytes.Buffer
	proc.Stdout = &output
	proc.Stderr = &output

	s.logger.Debug("spawning shell", "shell", shell, "cmd", sh.Cmd)

	err := proc.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, executor.NewExecError("spawn %q: %v", shell, err)
		}
	}

	return &executor.Result{Stdout: output.String(), Returncode: exitCode}, nil
}

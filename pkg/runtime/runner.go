// Package runtime drives playbook execution: it walks the command list,
// evaluates only_if conditions, and hands each command to the execution
// engine. A fatal classification stops the walk and is returned to the
// caller; only the CLI decides to exit the process.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"

	"github.com/soralis-ops/sortie/pkg/backends"
	"github.com/soralis-ops/sortie/pkg/executor"
	"github.com/soralis-ops/sortie/pkg/guard"
	"github.com/soralis-ops/sortie/pkg/schema"
	"github.com/soralis-ops/sortie/pkg/session"
	"github.com/soralis-ops/sortie/pkg/vars"
)

// Summary counts what happened during a run.
type Summary struct {
	Executed int
	Skipped  int
}

// Options tune a Runner beyond what the playbook itself declares.
type Options struct {
	// Sink receives every classified result; nil means discard.
	Sink executor.Sink
	// Vars overrides or supplements the playbook's declared variables.
	Vars map[string]string
	// RunID overrides the generated run identifier; useful when a trace
	// writer is created before the runner.
	RunID string
	// DryRun replaces every backend with one that echoes commands instead
	// of executing them.
	DryRun bool
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Runner executes a playbook front to back.
type Runner struct {
	logger   *slog.Logger
	playbook *schema.Playbook
	varstore *vars.Store
	sessions *session.Store
	engine   *executor.Engine
	runID    string
	summary  Summary
}

// NewRunner wires a Runner for the given playbook: guard policy compiled,
// variables seeded, backends registered, engine configured from the
// playbook's defaults.
func NewRunner(logger *slog.Logger, pb *schema.Playbook, opts Options) (*Runner, error) {
	g, err := guard.New(pb.Meta.Guard)
	if err != nil {
		return nil, fmt.Errorf("compile guard policy: %w", err)
	}

	varstore := vars.New(logger)
	for name, value := range pb.Meta.Vars {
		varstore.Set(name, value)
	}
	for name, value := range opts.Vars {
		varstore.Set(name, value)
	}

	disp := newDispatcher()
	if opts.DryRun {
		dry := backends.NewDryRun(logger)
		disp.register("shell", dry)
		disp.register("sleep", dry)
	} else {
		disp.register("shell", backends.NewShell(logger, g))
		disp.register("sleep", backends.NewSleep(logger))
	}

	defaults := pb.Meta.Defaults
	if defaults == nil {
		defaults = &schema.Defaults{
			LoopSleep:   schema.DefaultLoopSleep,
			LoopCount:   schema.DefaultLoopCount,
			SessionPoll: schema.DefaultSessionPoll,
		}
	}

	engine := executor.New(logger, varstore, disp, opts.Sink, g, executor.Config{
		LoopSleep: time.Duration(defaults.LoopSleep) * time.Second,
	})

	sessions := session.NewStore(logger, varstore)
	sessions.PollInterval = time.Duration(defaults.SessionPoll) * time.Second

	runID := opts.RunID
	if runID == "" {
		runID = NewRunID()
	}

	return &Runner{
		logger:   logger,
		playbook: pb,
		varstore: varstore,
		sessions: sessions,
		engine:   engine,
		runID:    runID,
	}, nil
}

// RunID identifies this run in traces and logs.
func (r *Runner) RunID() string { return r.runID }

// Vars exposes the run's variable store.
func (r *Runner) Vars() *vars.Store { return r.varstore }

// Sessions exposes the run's session store for embedding programs that
// forward session registrations.
func (r *Runner) Sessions() *session.Store { return r.sessions }

// Summary reports the counts of the last Run.
func (r *Runner) Summary() Summary { return r.summary }

// Run executes every command in order. The first fatal error stops the run
// and is returned; commands that merely fail continue the walk.
func (r *Runner) Run(ctx context.Context) error {
	r.summary = Summary{}
	r.logger.Info("starting playbook", "name", r.playbook.Meta.Name, "run_id", r.runID)

	for i, entry := range r.playbook.Commands {
		cmd := entry.Command
		base := cmd.Base()

		if base.OnlyIf != "" {
			matched, err := r.evalCondition(base.OnlyIf)
			if err != nil {
				return fmt.Errorf("command %d only_if: %w", i+1, err)
			}
			if !matched {
				r.summary.Skipped++
				r.logger.Info("skipping command", "index", i+1, "only_if", base.OnlyIf)
				continue
			}
		}

		if err := r.engine.Run(ctx, cmd); err != nil {
			return fmt.Errorf("command %d: %w", i+1, err)
		}
		r.summary.Executed++
	}

	r.logger.Info("playbook finished",
		"name", r.playbook.Meta.Name,
		"executed", r.summary.Executed,
		"skipped", r.summary.Skipped)
	return nil
}

// evalCondition evaluates an only_if condition against the variable store.
// Template syntax resolves through the store with shell-style truthiness;
// anything else compiles as an expression over the variables.
func (r *Runner) evalCondition(condition string) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true, nil
	}

	if strings.Contains(condition, "{{") {
		val, err := r.varstore.Substitute(condition)
		if err != nil {
			return false, err
		}
		val = strings.TrimSpace(val)
		return val != "" && val != "false" && val != "0", nil
	}

	env := make(map[string]any)
	for name, value := range r.varstore.Snapshot() {
		env[name] = value
	}
	program, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", condition, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", condition, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T)", condition, output)
	}
	return result, nil
}

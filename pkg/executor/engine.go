package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/soralis-ops/sortie/pkg/guard"
	"github.com/soralis-ops/sortie/pkg/schema"
	"github.com/soralis-ops/sortie/pkg/vars"
)

// Well-known variable names published by the engine after every attempt.
const (
	ResultStdoutVar     = "RESULT_STDOUT"
	ResultReturncodeVar = "RESULT_RETURNCODE"
)

// Primitive is the single-attempt execution contract a backend supplies:
// run the command once and return a Result, or an *ExecError when the
// attempt itself failed. All cross-cutting behavior (logging, persistence,
// classification, retry) lives in the Engine, never in the backend.
type Primitive interface {
	ExecCommand(ctx context.Context, cmd schema.Command) (*Result, error)
}

// Config holds engine timing settings resolved from playbook defaults.
type Config struct {
	// LoopSleep is the pause between retry attempts.
	LoopSleep time.Duration
}

// Engine drives one logical command through its full lifecycle. It is
// backend-agnostic: the injected Primitive performs the actual attempt.
type Engine struct {
	logger    *slog.Logger
	varstore  *vars.Store
	primitive Primitive
	sink      Sink
	guard     *guard.Guard
	cfg       Config
}

// New creates an Engine. A nil sink discards results; a nil guard is
// permissive.
func New(logger *slog.Logger, store *vars.Store, primitive Primitive, sink Sink, g *guard.Guard, cfg Config) *Engine {
	if sink == nil {
		sink = nopSink{}
	}
	if g == nil {
		g, _ = guard.New(nil)
	}
	return &Engine{
		logger:    logger,
		varstore:  store,
		primitive: primitive,
		sink:      sink,
		guard:     g,
		cfg:       cfg,
	}
}

// ReplaceVariables returns a structurally independent copy of cmd with every
// substitution-eligible field resolved through the variable store. The
// caller's descriptor is never mutated.
func (e *Engine) ReplaceVariables(cmd schema.Command) (schema.Command, error) {
	clone := cmd.Clone()
	for _, ref := range clone.TemplateRefs() {
		switch field := ref.(type) {
		case *string:
			if *field == "" {
				continue
			}
			replaced, err := e.varstore.Substitute(*field)
			if err != nil {
				return nil, fmt.Errorf("substitute variables: %w", err)
			}
			*field = replaced
		case map[string]string:
			for k, v := range field {
				replaced, err := e.varstore.Substitute(v)
				if err != nil {
					return nil, fmt.Errorf("substitute variables in %q: %w", k, err)
				}
				field[k] = replaced
			}
		}
	}
	return clone, nil
}

// Run executes the command's full lifecycle: substitution, then the
// classification pipeline with bounded retry. A returned *FatalError means
// the playbook must stop; the driver decides how.
func (e *Engine) Run(ctx context.Context, cmd schema.Command) error {
	e.logger.Debug("template command", "cmd", cmd.Base().Cmd)
	substituted, err := e.ReplaceVariables(cmd)
	if err != nil {
		return err
	}
	return e.exec(ctx, substituted)
}

// exec is the lifecycle pipeline. Retry repeats the whole pipeline on the
// same already-substituted command; variables are never re-resolved.
func (e *Engine) exec(ctx context.Context, cmd schema.Command) error {
	base := cmd.Base()
	runCount := 1

	for {
		e.logger.Info("executing", "cmd", base.Cmd)

		result, err := e.attempt(ctx, cmd)
		if err != nil {
			return err
		}
		result.Stdout = e.guard.Redact(result.Stdout)

		if result.Returncode != 0 && base.ExitOnError {
			e.logger.Error(result.Stdout)
			e.logger.Debug("stopping because return-code is not 0")
			return &FatalError{Reason: fmt.Sprintf("command failed with return-code %d and exit_on_error is set", result.Returncode)}
		}

		e.varstore.Set(ResultStdoutVar, result.Stdout)
		e.varstore.Set(ResultReturncodeVar, strconv.Itoa(result.Returncode))

		if err := e.sink.Emit(cmd, result); err != nil {
			e.logger.Warn("unable to emit result", "error", err)
		}
		e.saveOutput(base, result)

		if fatal := e.errorIf(base, result); fatal != nil {
			return fatal
		}
		if fatal := e.errorIfNot(base, result); fatal != nil {
			return fatal
		}

		trigger, err := e.loopTrigger(base, result)
		if err != nil {
			return err
		}
		if trigger == "" {
			return nil
		}
		e.logger.Warn("re-running command", "trigger", trigger)

		loopCount, err := variableToInt("loop_count", base.LoopCount)
		if err != nil {
			return err
		}
		if runCount >= loopCount {
			e.logger.Error("loop_count exceeded", "loop_count", loopCount)
			return &FatalError{Reason: fmt.Sprintf("loop_count %d exceeded", loopCount)}
		}
		runCount++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.LoopSleep):
		}
	}
}

// attempt invokes the primitive once, converting a typed ExecError into a
// failing Result. This is the one localized recovery point in the system.
func (e *Engine) attempt(ctx context.Context, cmd schema.Command) (*Result, error) {
	result, err := e.primitive.ExecCommand(ctx, cmd)
	if err != nil {
		var execErr *ExecError
		if errors.As(err, &execErr) {
			return &Result{Stdout: execErr.Error(), Returncode: 1}, nil
		}
		return nil, err
	}
	return result, nil
}

// saveOutput writes the captured output to command.save, if set. Failures
// are logged and swallowed; persistence is best-effort.
func (e *Engine) saveOutput(base *schema.BaseCommand, result *Result) {
	if base.Save == "" {
		return
	}
	if err := os.WriteFile(base.Save, []byte(result.Stdout), 0o644); err != nil {
		e.logger.Warn("unable to write output file", "path", base.Save, "error", err)
	}
}

// errorIf terminates the run when the pattern matches the output.
func (e *Engine) errorIf(base *schema.BaseCommand, result *Result) error {
	if base.ErrorIf == "" {
		return nil
	}
	match, err := searchOutput(base.ErrorIf, result.Stdout)
	if err != nil {
		return err
	}
	if match != "" {
		e.logger.Error("error_if matches", "match", match)
		return &FatalError{Reason: fmt.Sprintf("error_if matches: %s", match)}
	}
	e.logger.Debug("error_if does not match")
	return nil
}

// errorIfNot terminates the run when the pattern does NOT match the output.
func (e *Engine) errorIfNot(base *schema.BaseCommand, result *Result) error {
	if base.ErrorIfNot == "" {
		return nil
	}
	match, err := searchOutput(base.ErrorIfNot, result.Stdout)
	if err != nil {
		return err
	}
	if match == "" {
		e.logger.Error("error_if_not does not match")
		return &FatalError{Reason: "error_if_not does not match"}
	}
	e.logger.Debug("error_if_not matches")
	return nil
}

// loopTrigger reports which loop predicate, if any, asks for a retry.
// loop_if is evaluated before loop_if_not.
func (e *Engine) loopTrigger(base *schema.BaseCommand, result *Result) (string, error) {
	if base.LoopIf != "" {
		match, err := searchOutput(base.LoopIf, result.Stdout)
		if err != nil {
			return "", err
		}
		if match != "" {
			return "loop_if", nil
		}
		e.logger.Debug("loop_if does not match")
	}
	if base.LoopIfNot != "" {
		match, err := searchOutput(base.LoopIfNot, result.Stdout)
		if err != nil {
			return "", err
		}
		if match == "" {
			return "loop_if_not", nil
		}
		e.logger.Debug("loop_if_not matches")
	}
	return "", nil
}

// searchOutput performs a multiline regex search and returns the matched
// text, or empty when there is no match.
func searchOutput(pattern, output string) (string, error) {
	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return "", fmt.Errorf("compile predicate %q: %w", pattern, err)
	}
	return re.FindString(output), nil
}

// variableToInt parses a store-resolved value as a non-negative integer.
// Anything else is a typed configuration failure, never a silent default.
func variableToInt(field, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0, &ConfigError{Field: field, Value: value}
	}
	return n, nil
}

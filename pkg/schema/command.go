// Polymorphic command descriptors. Each concrete command type declares its
// own substitution-eligible fields via TemplateRefs, so the execution engine
// never needs to know the shape of a backend's configuration.

package schema

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Command is the descriptor surface the execution engine operates on.
// Implementations embed BaseCommand for the lifecycle fields and add
// backend-specific configuration on top.
type Command interface {
	// Base exposes the lifecycle fields shared by every command type.
	Base() *BaseCommand

	// Clone returns a structurally independent deep copy. The engine
	// substitutes variables on the clone only; the original descriptor is
	// never mutated.
	Clone() Command

	// TemplateRefs returns the receiver's substitution-eligible fields:
	// each element is either a *string or a map[string]string. For maps,
	// values are substituted and keys left unchanged. Call this on a clone.
	TemplateRefs() []any
}

// BaseCommand holds the fields the execution engine reads on every command.
type BaseCommand struct {
	Type        string `yaml:"type"                    json:"type" jsonschema:"required,enum=shell,enum=sleep"`
	Cmd         string `yaml:"cmd,omitempty"           json:"cmd,omitempty"`
	Save        string `yaml:"save,omitempty"          json:"save,omitempty"`
	ExitOnError bool   `yaml:"exit_on_error,omitempty" json:"exit_on_error,omitempty"`
	ErrorIf     string `yaml:"error_if,omitempty"      json:"error_if,omitempty"`
	ErrorIfNot  string `yaml:"error_if_not,omitempty"  json:"error_if_not,omitempty"`
	LoopIf      string `yaml:"loop_if,omitempty"       json:"loop_if,omitempty"`
	LoopIfNot   string `yaml:"loop_if_not,omitempty"   json:"loop_if_not,omitempty"`
	LoopCount   string `yaml:"loop_count,omitempty"    json:"loop_count,omitempty"`
	OnlyIf      string `yaml:"only_if,omitempty"       json:"only_if,omitempty"`
}

// Base implements Command.
func (b *BaseCommand) Base() *BaseCommand { return b }

// templateRefs returns the base fields eligible for substitution. OnlyIf is
// excluded: conditions are evaluated against the variable store directly.
func (b *BaseCommand) templateRefs() []any {
	return []any{
		&b.Cmd,
		&b.Save,
		&b.ErrorIf,
		&b.ErrorIfNot,
		&b.LoopIf,
		&b.LoopIfNot,
		&b.LoopCount,
	}
}

// ShellCommand runs a command line through a shell interpreter.
type ShellCommand struct {
	BaseCommand `yaml:",inline"`

	// Shell is the interpreter binary; defaults to /bin/sh at dispatch.
	Shell string `yaml:"shell,omitempty" json:"shell,omitempty"`
	// Env is merged into the interpreter's environment. Values are
	// substitution-eligible, keys are not.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Clone implements Command.
func (c *ShellCommand) Clone() Command {
	cp := *c
	if c.Env != nil {
		cp.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			cp.Env[k] = v
		}
	}
	return &cp
}

// TemplateRefs implements Command.
func (c *ShellCommand) TemplateRefs() []any {
	refs := c.templateRefs()
	refs = append(refs, &c.Shell)
	if c.Env != nil {
		refs = append(refs, c.Env)
	}
	return refs
}

// SleepCommand pauses the playbook for a number of seconds.
type SleepCommand struct {
	BaseCommand `yaml:",inline"`

	// Seconds is text so it can reference variables; the backend parses it.
	Seconds string `yaml:"seconds" json:"seconds" jsonschema:"required"`
}

// Clone implements Command.
func (c *SleepCommand) Clone() Command {
	cp := *c
	return &cp
}

// TemplateRefs implements Command.
func (c *SleepCommand) TemplateRefs() []any {
	return append(c.templateRefs(), &c.Seconds)
}

// CommandEntry wraps a Command for YAML decoding: the type field of each
// list item selects the concrete descriptor struct.
type CommandEntry struct {
	Command Command
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *CommandEntry) UnmarshalYAML(node *yaml.Node) error {
	var probe struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&probe); err != nil {
		return fmt.Errorf("decode command type: %w", err)
	}

	switch probe.Type {
	case "shell", "":
		cmd := &ShellCommand{}
		if err := node.Decode(cmd); err != nil {
			return fmt.Errorf("decode shell command: %w", err)
		}
		cmd.Type = "shell"
		e.Command = cmd
	case "sleep":
		cmd := &SleepCommand{}
		if err := node.Decode(cmd); err != nil {
			return fmt.Errorf("decode sleep command: %w", err)
		}
		e.Command = cmd
	default:
		return fmt.Errorf("unknown command type %q (line %d)", probe.Type, node.Line)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (e CommandEntry) MarshalYAML() (any, error) {
	return e.Command, nil
}

// MarshalJSON flattens the entry to the underlying command for JSON-Schema
// validation and trace output.
func (e CommandEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Command)
}

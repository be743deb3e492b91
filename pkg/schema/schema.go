// Package schema defines the Go struct types for the playbook YAML schema
// and provides strict YAML parsing.
package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Playbook is the top-level document defining an ordered attack procedure.
type Playbook struct {
	APIVersion string         `yaml:"apiVersion" json:"apiVersion" jsonschema:"required,enum=playbook/v1"`
	Meta       Meta           `yaml:"meta"       json:"meta"       jsonschema:"required"`
	Commands   []CommandEntry `yaml:"commands"   json:"commands"   jsonschema:"required"`
}

// Meta contains playbook metadata, initial variables, defaults and guard policy.
type Meta struct {
	Name        string            `yaml:"name"                  json:"name" jsonschema:"required"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Vars        map[string]string `yaml:"vars,omitempty"        json:"vars,omitempty"`
	Defaults    *Defaults         `yaml:"defaults,omitempty"    json:"defaults,omitempty"`
	Guard       *GuardPolicy      `yaml:"guard,omitempty"       json:"guard,omitempty"`
}

// Defaults specifies execution settings applied to all commands unless a
// command overrides them.
type Defaults struct {
	// LoopSleep is the pause in seconds between retry attempts of a command
	// whose loop predicate triggered.
	LoopSleep int `yaml:"loop_sleep,omitempty" json:"loop_sleep,omitempty"`
	// LoopCount is the retry bound applied when a command sets a loop
	// predicate but no loop_count of its own. Kept as text so it can
	// reference variables, like the per-command field.
	LoopCount string `yaml:"loop_count,omitempty" json:"loop_count,omitempty"`
	// SessionPoll is the interval in seconds between live-registry polls
	// while waiting for a session.
	SessionPoll int `yaml:"session_poll,omitempty" json:"session_poll,omitempty"`
}

// GuardPolicy defines safety rules evaluated before and during execution.
type GuardPolicy struct {
	AllowedCommands []string        `yaml:"allowed_commands,omitempty" json:"allowed_commands,omitempty"`
	DeniedCommands  []string        `yaml:"denied_commands,omitempty"  json:"denied_commands,omitempty"`
	Redact          []RedactionRule `yaml:"redact,omitempty"           json:"redact,omitempty"`
}

// RedactionRule is a regex pattern-replacement pair for sanitizing output.
type RedactionRule struct {
	Pattern string `yaml:"pattern" json:"pattern" jsonschema:"required"`
	Replace string `yaml:"replace" json:"replace" jsonschema:"required"`
}

// DefaultLoopSleep is applied when meta.defaults.loop_sleep is unset.
const DefaultLoopSleep = 5

// DefaultLoopCount is applied when neither the command nor meta.defaults
// sets loop_count.
const DefaultLoopCount = "3"

// DefaultSessionPoll is applied when meta.defaults.session_poll is unset.
const DefaultSessionPoll = 3

// LoadFile reads and parses a playbook YAML file with strict unknown-field
// rejection (yaml.v3 KnownFields). Returns the parsed Playbook or an error.
func LoadFile(path string) (*Playbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playbook: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a playbook from an io.Reader with strict unknown-field rejection.
func Load(r io.Reader) (*Playbook, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var pb Playbook
	if err := dec.Decode(&pb); err != nil {
		return nil, fmt.Errorf("decode playbook: %w", err)
	}
	pb.normalize()
	return &pb, nil
}

// normalize fills in defaulted fields so downstream code never re-derives them.
func (pb *Playbook) normalize() {
	if pb.Meta.Defaults == nil {
		pb.Meta.Defaults = &Defaults{}
	}
	d := pb.Meta.Defaults
	if d.LoopSleep == 0 {
		d.LoopSleep = DefaultLoopSleep
	}
	if d.LoopCount == "" {
		d.LoopCount = DefaultLoopCount
	}
	if d.SessionPoll == 0 {
		d.SessionPoll = DefaultSessionPoll
	}
	for _, entry := range pb.Commands {
		if entry.Command == nil {
			continue
		}
		base := entry.Command.Base()
		if base.LoopCount == "" {
			base.LoopCount = d.LoopCount
		}
	}
}

package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "commands[0].error_if")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidateFile performs the full 3-phase validation pipeline on a playbook file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) (*Playbook, []*ValidationError) {
	var allErrors []*ValidationError

	pb, err := LoadFile(path)
	if err != nil {
		allErrors = append(allErrors, &ValidationError{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		})
		return nil, allErrors
	}

	allErrors = append(allErrors, validateSemantic(pb)...)
	allErrors = append(allErrors, ValidateDomain(pb)...)

	if len(allErrors) > 0 {
		return pb, allErrors
	}
	return pb, nil
}

// validateSemantic validates the playbook against the generated JSON Schema.
func validateSemantic(pb *Playbook) []*ValidationError {
	semErr := func(msg string) []*ValidationError {
		return []*ValidationError{{Phase: "semantic", Message: msg, Severity: "error"}}
	}

	data, err := json.Marshal(pb)
	if err != nil {
		return semErr(fmt.Sprintf("marshal for schema validation: %v", err))
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semErr(fmt.Sprintf("generate schema: %v", err))
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semErr(fmt.Sprintf("unmarshal schema: %v", err))
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("playbook-v1.json", schemaDoc); err != nil {
		return semErr(fmt.Sprintf("add schema resource: %v", err))
	}
	sch, err := c.Compile("playbook-v1.json")
	if err != nil {
		return semErr(fmt.Sprintf("compile schema: %v", err))
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return semErr(fmt.Sprintf("unmarshal document: %v", err))
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = semErr(err.Error())
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation.
// Returns a slice of errors; empty means valid.
func ValidateDomain(pb *Playbook) []*ValidationError {
	var errs []*ValidationError

	add := func(path, msg string) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path,
			Message:  msg,
			Severity: "error",
		})
	}

	if pb.APIVersion != "playbook/v1" {
		add("apiVersion", fmt.Sprintf("unrecognized apiVersion %q, expected %q", pb.APIVersion, "playbook/v1"))
	}

	if pb.Meta.Guard != nil {
		for i, rule := range pb.Meta.Guard.Redact {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				add(fmt.Sprintf("meta.guard.redact[%d].pattern", i), fmt.Sprintf("invalid regex: %v", err))
			}
		}
	}

	for i, entry := range pb.Commands {
		if entry.Command == nil {
			add(fmt.Sprintf("commands[%d]", i), "empty command entry")
			continue
		}
		base := entry.Command.Base()
		loc := func(field string) string { return fmt.Sprintf("commands[%d].%s", i, field) }

		// Predicates must compile unless they are templated, in which case
		// they can only be checked after substitution.
		for field, pattern := range map[string]string{
			"error_if":     base.ErrorIf,
			"error_if_not": base.ErrorIfNot,
			"loop_if":      base.LoopIf,
			"loop_if_not":  base.LoopIfNot,
		} {
			if pattern == "" || strings.Contains(pattern, "{{") {
				continue
			}
			if _, err := regexp.Compile("(?m)" + pattern); err != nil {
				add(loc(field), fmt.Sprintf("invalid regex: %v", err))
			}
		}

		if base.LoopCount != "" && !strings.Contains(base.LoopCount, "{{") {
			if n, err := strconv.Atoi(base.LoopCount); err != nil || n < 0 {
				add(loc("loop_count"), fmt.Sprintf("not a non-negative integer: %q", base.LoopCount))
			}
		}

		switch cmd := entry.Command.(type) {
		case *ShellCommand:
			if strings.TrimSpace(cmd.Cmd) == "" {
				add(loc("cmd"), "shell command has no cmd")
			}
		case *SleepCommand:
			if cmd.Seconds == "" {
				add(loc("seconds"), "sleep command has no seconds")
			} else if !strings.Contains(cmd.Seconds, "{{") {
				if n, err := strconv.Atoi(cmd.Seconds); err != nil || n < 0 {
					add(loc("seconds"), fmt.Sprintf("not a non-negative integer: %q", cmd.Seconds))
				}
			}
		}
	}

	return errs
}

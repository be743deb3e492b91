// Package guard implements command allowlist/denylist checks and output
// redaction for playbook execution.
package guard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/soralis-ops/sortie/pkg/schema"
)

// Redaction is a pre-compiled redaction rule.
type Redaction struct {
	Pattern *regexp.Regexp
	Replace string
}

// Guard evaluates the playbook's guard policy before and during execution.
type Guard struct {
	allowed []string
	denied  []string
	redact  []*Redaction
}

// New compiles a Guard from a policy. A nil policy yields a permissive guard.
func New(policy *schema.GuardPolicy) (*Guard, error) {
	if policy == nil {
		return &Guard{}, nil
	}
	g := &Guard{
		allowed: policy.AllowedCommands,
		denied:  policy.DeniedCommands,
	}
	for _, r := range policy.Redact {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile redaction %q: %w", r.Pattern, err)
		}
		g.redact = append(g.redact, &Redaction{Pattern: re, Replace: r.Replace})
	}
	return g, nil
}

// CheckCommand validates the first token of a shell command line against the
// allowlist and denylist. Deny takes precedence over allow.
func (g *Guard) CheckCommand(cmdline string) error {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil
	}
	name := fields[0]

	for _, denied := range g.denied {
		if name == denied {
			return fmt.Errorf("command %q is denied by guard policy", name)
		}
	}

	if len(g.allowed) > 0 {
		for _, allowed := range g.allowed {
			if name == allowed {
				return nil
			}
		}
		return fmt.Errorf("command %q is not in the guard allowlist", name)
	}

	return nil
}

// Redact applies all compiled redaction rules to the given output.
func (g *Guard) Redact(output string) string {
	result := output
	for _, r := range g.redact {
		result = r.Pattern.ReplaceAllString(result, r.Replace)
	}
	return result
}

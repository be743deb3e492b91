package guard

import (
	"strings"
	"testing"

	"github.com/soralis-ops/sortie/pkg/schema"
)

func TestNilPolicyIsPermissive(t *testing.T) {
	g, err := New(nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := g.CheckCommand("rm -rf /tmp/loot"); err != nil {
		t.Errorf("permissive guard rejected command: %v", err)
	}
	if got := g.Redact("secret=hunter2"); got != "secret=hunter2" {
		t.Errorf("permissive guard altered output: %q", got)
	}
}

func TestDenyTakesPrecedence(t *testing.T) {
	g, err := New(&schema.GuardPolicy{
		AllowedCommands: []string{"nmap"},
		DeniedCommands:  []string{"nmap"},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := g.CheckCommand("nmap -sV host"); err == nil {
		t.Error("denied command passed")
	}
}

func TestAllowlist(t *testing.T) {
	g, err := New(&schema.GuardPolicy{AllowedCommands: []string{"nmap", "curl"}})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := g.CheckCommand("curl http://x"); err != nil {
		t.Errorf("allowlisted command rejected: %v", err)
	}
	if err := g.CheckCommand("nc -lvp 4444"); err == nil {
		t.Error("non-allowlisted command passed")
	}
}

func TestRedact(t *testing.T) {
	g, err := New(&schema.GuardPolicy{
		Redact: []schema.RedactionRule{
			{Pattern: `password=\S+`, Replace: "password=***"},
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	got := g.Redact("login password=s3cret done")
	if strings.Contains(got, "s3cret") {
		t.Errorf("secret survived redaction: %q", got)
	}
	if !strings.Contains(got, "password=***") {
		t.Errorf("replacement missing: %q", got)
	}
}

func TestInvalidRedactionPattern(t *testing.T) {
	_, err := New(&schema.GuardPolicy{
		Redact: []schema.RedactionRule{{Pattern: "([x", Replace: "y"}},
	})
	if err == nil {
		t.Fatal("expected compile error")
	}
}

package vars

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newTestStore() *Store {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSetGet(t *testing.T) {
	s := newTestStore()
	s.Set("TARGET", "10.0.0.5")

	v, ok := s.Get("TARGET")
	if !ok || v != "10.0.0.5" {
		t.Errorf("Get(TARGET) = %q, %v; want 10.0.0.5, true", v, ok)
	}
	if _, ok := s.Get("MISSING"); ok {
		t.Error("Get(MISSING) reported set")
	}
}

func TestSetOverwrites(t *testing.T) {
	s := newTestStore()
	s.Set("RESULT_STDOUT", "first")
	s.Set("RESULT_STDOUT", "second")
	if v, _ := s.Get("RESULT_STDOUT"); v != "second" {
		t.Errorf("got %q, want second", v)
	}
}

func TestSubstitute(t *testing.T) {
	s := newTestStore()
	s.Set("TARGET", "10.0.0.5")
	s.Set("PORT", "4444")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "nmap -sV localhost", "nmap -sV localhost"},
		{"single variable", "nmap {{ .TARGET }}", "nmap 10.0.0.5"},
		{"two variables", "nc {{ .TARGET }} {{ .PORT }}", "nc 10.0.0.5 4444"},
		{"func map", "{{ upper .TARGET }}", "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Substitute(tt.in)
			if err != nil {
				t.Fatalf("Substitute(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Substitute(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSubstituteMissingVariable(t *testing.T) {
	s := newTestStore()
	_, err := s.Substitute("echo {{ .NOPE }}")
	if err == nil {
		t.Fatal("expected error for unset variable")
	}
	if !strings.Contains(err.Error(), "NOPE") {
		t.Errorf("error %q does not name the missing variable", err)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := newTestStore()
	s.Set("A", "1")
	snap := s.Snapshot()
	snap["A"] = "mutated"
	if v, _ := s.Get("A"); v != "1" {
		t.Errorf("store mutated through snapshot: %q", v)
	}
}

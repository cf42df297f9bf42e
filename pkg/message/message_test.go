package message

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		tmpl   string
		params []string
		want   string
	}{
		{"simple", "Banned %NAME%", []string{"NAME", "alice"}, "Banned alice"},
		{"lower placeholder", "by %operator%", []string{"OPERATOR", "mod"}, "by mod"},
		{"doubled", "%MM%:%SS%", []string{"M", "1", "S", "5", "MM", "01", "SS", "05"}, "01:05"},
		{"single vs doubled", "%M%m %MM%", []string{"M", "1", "MM", "01"}, "1m 01"},
		{"no params", "%NAME%", nil, "%NAME%"},
		{"odd params", "%A%%B%", []string{"A", "x", "B"}, "x%B%"},
		{"mixed case placeholder", "hi %Name%", []string{"NAME", "alice"}, "hi alice"},
		{"mixed case key", "hi %NAME%", []string{"Name", "alice"}, "hi alice"},
		{"first pair wins", "%A%", []string{"A", "1", "a", "2"}, "1"},
		{"stray percent", "100% sure, %NAME%", []string{"NAME", "bob"}, "100% sure, bob"},
		{"unknown kept", "%X% and %NAME%", []string{"NAME", "bob"}, "%X% and bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.tmpl, tt.params...); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestLinesUnmarshal(t *testing.T) {
	var doc struct {
		One  Lines `yaml:"one"`
		Many Lines `yaml:"many"`
	}
	src := "one: single line\nmany:\n  - first\n  - second\n"
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(Lines{"single line"}, doc.One); diff != "" {
		t.Errorf("scalar mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Lines{"first", "second"}, doc.Many); diff != "" {
		t.Errorf("sequence mismatch (-want +got):\n%s", diff)
	}

	var bad struct {
		X Lines `yaml:"x"`
	}
	if err := yaml.Unmarshal([]byte("x:\n  a: b\n"), &bad); err == nil {
		t.Error("expected error for mapping node")
	}
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(
		map[string]Lines{"Ban.Layout": {"You are banned", "Reason: %REASON%"}},
		map[string]Lines{"spam": {"Spamming: %REASON%"}},
	)

	if got := c.Message("Ban.Layout", "REASON", "cheating"); got != "You are banned\nReason: cheating" {
		t.Errorf("Message = %q", got)
	}
	if got := c.Message("Missing.Key"); got != "Missing.Key" {
		t.Errorf("missing key rendered as %q", got)
	}
	lines, ok := c.Layout("spam", "REASON", "chat")
	if !ok || len(lines) != 1 || lines[0] != "Spamming: chat" {
		t.Errorf("Layout = %v, %v", lines, ok)
	}
	if _, ok := c.Layout("nope"); ok {
		t.Error("unexpected layout")
	}
}

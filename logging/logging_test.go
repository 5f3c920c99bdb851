package logging

import "testing"

func TestNewAcceptsKnownLevels(t *testing.T) {
	for _, level := range []string{"", "debug", "INFO", "warn", "error"} {
		if _, err := New(level); err != nil {
			t.Fatalf("level %q: unexpected error %v", level, err)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestMask(t *testing.T) {
	if got := Mask("oauth:abc"); got != "*********" {
		t.Fatalf("unexpected mask %q", got)
	}
}

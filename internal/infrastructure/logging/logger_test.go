package logging

import "testing"

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"info", "INFO"},
		{"", "INFO"},
		{"bogus", "INFO"},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewProducesUsableLogger(t *testing.T) {
	logger := New(Options{Level: "debug", JSON: true, Output: "stdout"})
	if logger == nil || logger.Logger == nil {
		t.Fatal("New returned a nil logger")
	}
	logger.Info("hello", "key", "value")
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default returned nil")
	}
}

func TestWithAddsAttrs(t *testing.T) {
	logger := Default().With("component", "session")
	if logger == nil {
		t.Fatal("With returned nil")
	}
}

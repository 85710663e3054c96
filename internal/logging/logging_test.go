package logging_test

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/signalnine/papertune/internal/logging"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"console", "json", ""} {
		l, err := logging.New("debug", format)
		if err != nil {
			t.Fatalf("New(debug, %q): %v", format, err)
		}
		if !l.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("format %q: debug not enabled", format)
		}
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := logging.New("loud", "console"); err == nil {
		t.Error("expected error for bad level")
	}
	if _, err := logging.New("info", "xml"); err == nil {
		t.Error("expected error for bad format")
	}
}

func TestOrNop(t *testing.T) {
	if logging.OrNop(nil) == nil {
		t.Error("OrNop(nil) returned nil")
	}
}

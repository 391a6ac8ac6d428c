package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{"", zapcore.InfoLevel, zapcore.DebugLevel},
		{"debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		l, err := New(tt.level)
		if err != nil {
			t.Fatalf("New(%q): %v", tt.level, err)
		}
		if !l.Core().Enabled(tt.enabled) {
			t.Errorf("New(%q): level %v should be enabled", tt.level, tt.enabled)
		}
		if l.Core().Enabled(tt.muted) {
			t.Errorf("New(%q): level %v should be muted", tt.level, tt.muted)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSetGlobalSwapsLogger(t *testing.T) {
	orig := Global()
	defer SetGlobal(orig)

	l, err := New("error")
	if err != nil {
		t.Fatal(err)
	}
	SetGlobal(l)
	if Global() != l {
		t.Error("Global() did not return the installed logger")
	}
}

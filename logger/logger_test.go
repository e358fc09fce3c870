package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DebugLevel,
		"":        InfoLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestHelpersWithoutLogger(t *testing.T) {
	Use(nil)
	Debugf("dropped %d", 1)
	Infof("dropped")
	With("k", "v").Infow("dropped")
	Sync()
}

func TestInitLoggerWritesFile(t *testing.T) {
	defer Use(nil)
	file := filepath.Join(t.TempDir(), "arm.log")
	InitLogger(Options{Level: InfoLevel, File: file, MaxSizeMB: 1})
	Infof("tick %d written", 42)
	Debugf("below level")
	Sync()

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "tick 42 written") {
		t.Errorf("log file missing message: %q", text)
	}
	if strings.Contains(text, "below level") {
		t.Errorf("debug message leaked at info level: %q", text)
	}
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))
	defer Use(nil)

	With("session", "abc").Warnw("sample skipped", "segment", 2)
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["session"] != "abc" || fields["segment"] != int64(2) {
		t.Errorf("unexpected fields: %v", fields)
	}
}

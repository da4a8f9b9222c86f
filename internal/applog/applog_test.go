package applog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWritesToRollingFile(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := New(Options{Dir: dir, Level: zerolog.InfoLevel})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer closer()

	logger.Info().Str("test", "value").Msg("hello")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d log files, want 1", len(entries))
	}
	if got := entries[0].Name(); filepath.Ext(got) != ".log" {
		t.Errorf("log file name = %q, want .log suffix", got)
	}
}

func TestNewWithoutDirDoesNotPanic(t *testing.T) {
	logger, closer, err := New(Options{Level: zerolog.DebugLevel, Console: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer closer()
	logger.Debug().Msg("no file backing")
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf).Level(zerolog.InfoLevel)

	sub := Component(base, "wire")
	if sub.GetLevel() != base.GetLevel() {
		t.Errorf("Component() level = %v, want %v", sub.GetLevel(), base.GetLevel())
	}
	sub.Info().Msg("tagged")
	if !strings.Contains(buf.String(), `"component":"wire"`) {
		t.Errorf("Component() output = %q, want a component=wire field", buf.String())
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.Level != zerolog.InfoLevel {
		t.Errorf("DefaultOptions().Level = %v, want InfoLevel", opts.Level)
	}
	if !opts.Console {
		t.Error("DefaultOptions().Console = false, want true")
	}
}

package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	if err := Init("warn", &buf); err != nil {
		t.Fatal(err)
	}
	Logger().Info("hidden")
	Logger().Warn("shown", "unit", 3)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") || !strings.Contains(out, "unit=3") {
		t.Fatalf("output: %q", out)
	}

	if err := Init("loud", &buf); err == nil {
		t.Fatal("bad level accepted")
	}
	if Or(nil) == nil {
		t.Fatal("Or(nil) returned nil")
	}
}

func TestTraceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "debug.log")
	if err := EnableFile(path); err != nil {
		t.Fatal(err)
	}
	defer Disable()
	if !Enabled() {
		t.Fatal("not enabled")
	}
	Log("norm", "kill %d", 60)
	for i := 0; i < 4; i++ {
		LogEvery(2, "mux", "tick")
	}
	Disable()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "kill 60") || strings.Count(out, "tick (every 2") != 2 {
		t.Fatalf("log: %q", out)
	}
	Log("norm", "after disable")
}

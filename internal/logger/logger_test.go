package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
)

func TestInitWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")
	defer InitWithWriter(io.Discard, "INFO", "text")

	Info("listener started", "addr", "127.0.0.1:3000")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected valid JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "listener started" {
		t.Errorf("Expected msg 'listener started', got %v", entry["msg"])
	}
	if entry["addr"] != "127.0.0.1:3000" {
		t.Errorf("Expected addr field, got %v", entry["addr"])
	}
}

func TestInitWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")
	defer InitWithWriter(io.Discard, "INFO", "text")

	Debug("debug line")
	Info("info line")
	Warn("warn line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("Expected debug/info suppressed at WARN level, got %q", out)
	}
	if !strings.Contains(out, "warn line") {
		t.Errorf("Expected warn line in output, got %q", out)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")
	defer InitWithWriter(io.Discard, "INFO", "text")

	Debug("hidden")
	SetLevel("DEBUG")
	Debug("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected debug suppressed before SetLevel, got %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("Expected debug visible after SetLevel, got %q", out)
	}
}

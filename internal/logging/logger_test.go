package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, line string) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("Log line is not JSON: %v (%q)", err, line)
	}
	return entry
}

// TestLoggerJSONShape verifies one entry carries message, level, timestamp
// and the merged context fields.
func TestLoggerJSONShape(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelDebug)

	logger.Info("Sync run completed", map[string]interface{}{
		"synced": 3,
		"failed": 1,
	})

	entry := decodeLine(t, strings.TrimSpace(buf.String()))
	if entry["message"] != "Sync run completed" {
		t.Errorf("Expected message field, got %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("Expected level info, got %v", entry["level"])
	}
	if entry["timestamp"] == nil {
		t.Errorf("Expected timestamp field")
	}
	if entry["synced"] != float64(3) || entry["failed"] != float64(1) {
		t.Errorf("Expected context fields, got %v", entry)
	}
}

// TestLoggerLevelFiltering verifies entries below the minimum level are
// suppressed.
func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %q", len(lines), buf.String())
	}
	if entry := decodeLine(t, lines[0]); entry["message"] != "visible" {
		t.Errorf("Expected only the warning, got %v", entry)
	}
}

// TestLoggerErrorWithCode verifies the error and code fields.
func TestLoggerErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelDebug)

	logger.ErrorWithCode("Sync run failed", "SYNC_FAILED",
		errDummy("lock table corrupted"), map[string]interface{}{"run": 7})

	entry := decodeLine(t, strings.TrimSpace(buf.String()))
	if entry["code"] != "SYNC_FAILED" {
		t.Errorf("Expected code field, got %v", entry["code"])
	}
	if entry["error"] != "lock table corrupted" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
	if entry["run"] != float64(7) {
		t.Errorf("Expected context field, got %v", entry["run"])
	}
}

// TestLoggerContextMerge verifies later context maps win on key collision.
func TestLoggerContextMerge(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelDebug)

	logger.Info("merged",
		map[string]interface{}{"a": 1, "b": 1},
		map[string]interface{}{"b": 2})

	entry := decodeLine(t, strings.TrimSpace(buf.String()))
	if entry["a"] != float64(1) || entry["b"] != float64(2) {
		t.Errorf("Expected merge with later map winning, got %v", entry)
	}
}

type errDummy string

func (e errDummy) Error() string { return string(e) }

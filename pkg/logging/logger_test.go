package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test", "0.0.1", WarnLevel)
	logger.SetOutput(&buf)

	ctx := context.Background()
	logger.Debug(ctx, "debug message", Fields{})
	logger.Info(ctx, "info message", Fields{})
	logger.Warn(ctx, "warn message", Fields{"key": "value"})
	logger.Error(ctx, "error message", Fields{}, errors.New("boom"))

	entries := decodeEntries(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %s", len(entries), buf.String())
	}

	if entries[0]["message"] != "warn message" {
		t.Errorf("message = %v, want %v", entries[0]["message"], "warn message")
	}
	if entries[0]["key"] != "value" {
		t.Errorf("key = %v, want %v", entries[0]["key"], "value")
	}
	if entries[1]["error"] != "boom" {
		t.Errorf("error = %v, want %v", entries[1]["error"], "boom")
	}
	if entries[1]["service"] != "test" {
		t.Errorf("service = %v, want %v", entries[1]["service"], "test")
	}
}

func TestStructuredLogger_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test", "0.0.1", DebugLevel)
	logger.SetOutput(&buf)

	ctx := WithRequestID(context.Background(), "req-123")
	logger.WithFields(Fields{"component": "handlers"}).Info(ctx, "with request", Fields{"extra": 1})

	entries := decodeEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0]["request_id"] != "req-123" {
		t.Errorf("request_id = %v, want %v", entries[0]["request_id"], "req-123")
	}
	if entries[0]["component"] != "handlers" {
		t.Errorf("component = %v, want %v", entries[0]["component"], "handlers")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"unknown", InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

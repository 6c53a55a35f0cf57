package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/vanshika/upidiag/backend/internal/config"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "JSON"}, &buf)

	logger.Debug("probe", "transaction_id", "TXN000001")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "probe" {
		t.Fatalf("expected msg probe, got %v", entry["msg"])
	}
	if entry["service"] != "upi-diagnosis-api" {
		t.Fatalf("expected service attribute, got %v", entry["service"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "json")

	log.Debug("hidden")
	log.Info("alert sent", "alert_id", "A1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "alert sent" || entry["alert_id"] != "A1" || entry["service"] != "guard-dispatch" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "text")

	log.Debug("sweep complete", "expired", 2)

	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "expired=2") {
		t.Errorf("unexpected text output: %q", out)
	}
}

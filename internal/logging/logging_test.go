package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(&buf, "debug", "json"), "dispatcher")

	log.Debug().Str("job_id", "abc").Msg("started")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if line["component"] != "dispatcher" {
		t.Errorf("component = %v, want dispatcher", line["component"])
	}
	if line["message"] != "started" {
		t.Errorf("message = %v, want started", line["message"])
	}
	if line["level"] != "debug" {
		t.Errorf("level = %v, want debug", line["level"])
	}
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "chatty", "json")

	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line written at fallback level: %q", buf.String())
	}

	log.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Error("info line not written")
	}
}

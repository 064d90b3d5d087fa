// Package output writes the per-run JSON artifacts.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/smyja/web3event/internal/domain"
)

const DefaultDir = "event_data"

// FileSink writes artifacts under Dir.
type FileSink struct {
	Dir string
}

func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileSink{Dir: dir}
}

// FileNames returns the raw and processed artifact names for a run. Names
// depend only on provider and city.
func FileNames(provider domain.Provider, city string) (raw, processed string) {
	suffix := strings.ReplaceAll(city, "--", "_")
	if provider != "" && provider != domain.ProviderEventbrite {
		suffix = string(provider) + "_" + suffix
	}
	return "all_events_" + suffix + ".json", "processed_events_detailed_" + suffix + ".json"
}

// Write stores {"events": raw} and the normalized list, returning both
// paths. Existing files for the same city are replaced.
func (s *FileSink) Write(provider domain.Provider, city string, raw []domain.RawEvent, events []domain.NormalizedEvent) ([]string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if raw == nil {
		raw = []domain.RawEvent{}
	}
	if events == nil {
		events = []domain.NormalizedEvent{}
	}

	rawName, processedName := FileNames(provider, city)
	rawPath := filepath.Join(s.Dir, rawName)
	processedPath := filepath.Join(s.Dir, processedName)

	if err := writeJSON(rawPath, struct {
		Events []domain.RawEvent `json:"events"`
	}{Events: raw}); err != nil {
		return nil, err
	}
	if err := writeJSON(processedPath, events); err != nil {
		return []string{rawPath}, err
	}
	return []string{rawPath, processedPath}, nil
}

// writeJSON encodes v with two-space indentation and without HTML escaping,
// then renames it into place.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smyja/web3event/internal/domain"
)

// LoadCatalog reads the city and tag catalog from a YAML file. An empty path
// returns the built-in catalog. Sections missing from the file keep their
// built-in values.
//
//	cities:
//	  - id: ny--new-york
//	    label: New York
//	    luma_slug: nyc
//	tags: [token, blockchain]
//	luma_keywords: [web3, crypto]
func LoadCatalog(path string) (domain.Catalog, error) {
	if path == "" {
		return domain.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog document and checks it.
func ParseCatalog(data []byte) (domain.Catalog, error) {
	var file domain.Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return domain.Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}

	cat := domain.DefaultCatalog()
	if len(file.Cities) > 0 {
		cat.Cities = file.Cities
	}
	if len(file.Tags) > 0 {
		cat.Tags = file.Tags
	}
	if len(file.LumaKeywords) > 0 {
		cat.LumaKeywords = file.LumaKeywords
	}

	if err := checkCatalog(cat); err != nil {
		return domain.Catalog{}, err
	}
	return cat, nil
}

func checkCatalog(cat domain.Catalog) error {
	seen := make(map[string]bool, len(cat.Cities))
	for i, c := range cat.Cities {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return fmt.Errorf("catalog: city %d has no id", i)
		}
		if strings.ContainsAny(id, "/ ") {
			return fmt.Errorf("catalog: city id %q must be a single path segment", id)
		}
		if seen[id] {
			return fmt.Errorf("catalog: duplicate city %q", id)
		}
		seen[id] = true
	}
	for _, tag := range cat.Tags {
		if strings.TrimSpace(tag) == "" {
			return errors.New("catalog: empty tag")
		}
	}
	return nil
}

package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// StylesFile lists the selectable base styles, in <dataDir>/styles.yaml:
//
//	- id: streets
//	  name: Streets
//	  uri: https://demotiles.maplibre.org/style.json
const StylesFile = "styles.yaml"

// ParseStyles reads a "Name=uri,Name=uri" list. A bare uri is its own name.
func ParseStyles(list string) []Style {
	var styles []Style
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, uri, ok := strings.Cut(item, "=")
		if !ok {
			name, uri = item, item
		}
		name, uri = strings.TrimSpace(name), strings.TrimSpace(uri)
		styles = append(styles, Style{ID: slug(name), Name: name, URI: uri})
	}
	return styles
}

// LoadStyles merges styles.yaml from dataDir with the flag list and makes
// sure defaultURI is among them. Duplicate URIs keep the first entry.
func LoadStyles(dataDir, list, defaultURI string) ([]Style, error) {
	var styles []Style
	raw, err := os.ReadFile(filepath.Join(dataDir, StylesFile))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &styles); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", StylesFile, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading %s: %w", StylesFile, err)
	}
	styles = append(styles, ParseStyles(list)...)
	if defaultURI != "" {
		styles = append([]Style{{ID: "default", Name: "Default", URI: defaultURI}}, styles...)
	}

	seen := map[string]bool{}
	out := styles[:0]
	for _, s := range styles {
		if s.URI == "" || seen[s.URI] {
			continue
		}
		seen[s.URI] = true
		if s.ID == "" {
			s.ID = slug(s.Name)
		}
		out = append(out, s)
	}
	return out, nil
}

func slug(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, name)
}

// Package nlp implements dictionary-driven text analysis over transcripts:
// watchlist phrase matching for alerts and gazetteer lookup for entities.
package nlp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dictionary is one named term list: an alert category with its phrases or
// an entity label with its gazetteer items.
type Dictionary struct {
	Name  string
	Terms []string
}

// alertFile is the on-disk shape of an alert dictionary.
type alertFile struct {
	Category string   `yaml:"category"`
	Phrases  []string `yaml:"phrases"`
}

// entityFile is the on-disk shape of an entity dictionary.
type entityFile struct {
	Label string   `yaml:"label"`
	Items []string `yaml:"items"`
}

// LoadAlertDictionaries reads every *.yaml/*.yml file under dir. A file with
// no category falls back to its basename; files with no usable phrases or
// that fail to parse are skipped.
func LoadAlertDictionaries(dir string) ([]Dictionary, error) {
	return loadDictionaries(dir, func(data []byte, stem string) (Dictionary, error) {
		var f alertFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return Dictionary{}, err
		}
		name := f.Category
		if name == "" {
			name = stem
		}
		return Dictionary{Name: name, Terms: cleanTerms(f.Phrases)}, nil
	})
}

// LoadEntityDictionaries reads every *.yaml/*.yml file under dir. A file
// with no label falls back to its basename; files with no usable items or
// that fail to parse are skipped.
func LoadEntityDictionaries(dir string) ([]Dictionary, error) {
	return loadDictionaries(dir, func(data []byte, stem string) (Dictionary, error) {
		var f entityFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return Dictionary{}, err
		}
		name := f.Label
		if name == "" {
			name = stem
		}
		return Dictionary{Name: name, Terms: cleanTerms(f.Items)}, nil
	})
}

func loadDictionaries(dir string, parse func(data []byte, stem string) (Dictionary, error)) ([]Dictionary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading dictionary dir %s: %w", dir, err)
	}

	var dicts []Dictionary
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		dict, err := parse(data, stem)
		if err != nil || len(dict.Terms) == 0 {
			continue
		}
		dicts = append(dicts, dict)
	}
	return dicts, nil
}

func cleanTerms(raw []string) []string {
	terms := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

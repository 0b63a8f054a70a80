// Package feeders loads configuration documents from the encodings a setup
// may ship in. YAML is the native format of the declarative grammar; TOML
// and JSON renditions of the same section/module/attribute structure are
// accepted for setups generated by other tooling.
package feeders

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openlabkit/labmod"
)

// DocumentFeeder reads a configuration document from somewhere.
type DocumentFeeder interface {
	FeedDocument() (*labmod.Document, error)
}

// Load reads the document at path, picking the feeder by file extension.
// Unrecognized extensions are treated as YAML, the native format (the
// original setups use a .cfg suffix for YAML documents).
func Load(path string) (*labmod.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TomlFeeder{Path: path}.FeedDocument()
	case ".json":
		return JSONFeeder{Path: path}.FeedDocument()
	default:
		return YamlFeeder{Path: path}.FeedDocument()
	}
}

// Source adapts Load to the labmod.Source interface so reloads re-read the
// file.
func Source(path string) labmod.Source {
	return labmod.SourceFunc(func() (*labmod.Document, error) { return Load(path) })
}

// documentFromMap assembles a Document from a decoded top-level map. Order
// callbacks supply document order where the encoding preserves it; a nil
// callback falls back to ascending name order.
func documentFromMap(raw map[string]any, sectionOrder []string, moduleOrder func(section string) []string) (*labmod.Document, error) {
	doc := &labmod.Document{}

	if sectionOrder == nil {
		for name := range raw {
			sectionOrder = append(sectionOrder, name)
		}
		sort.Strings(sectionOrder)
	}

	for _, name := range sectionOrder {
		value := raw[name]
		if name == "global" {
			globalMap, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("global section must be a table, got %T", value)
			}
			global, err := labmod.GlobalFromMap(globalMap)
			if err != nil {
				return nil, err
			}
			doc.Global = global
			continue
		}

		cat := labmod.ParseCategory(name)
		if cat == labmod.CategoryUnknown {
			doc.UnknownSections = append(doc.UnknownSections, labmod.UnknownSection{Name: name})
			continue
		}

		var order []string
		if moduleOrder != nil {
			order = moduleOrder(name)
		}
		section, err := sectionFromMap(cat, value, order)
		if err != nil {
			return nil, err
		}
		doc.Sections = append(doc.Sections, section)
	}

	if len(doc.Sections) == 0 {
		return nil, labmod.ErrDocumentEmpty
	}
	return doc, nil
}

func sectionFromMap(cat labmod.Category, value any, moduleOrder []string) (*labmod.Section, error) {
	if value == nil {
		return &labmod.Section{Category: cat}, nil
	}
	entries, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("section %s: %w", cat, labmod.ErrSectionNotMap)
	}

	if moduleOrder == nil {
		for name := range entries {
			moduleOrder = append(moduleOrder, name)
		}
		sort.Strings(moduleOrder)
	}

	section := &labmod.Section{Category: cat}
	for _, name := range moduleOrder {
		attrs, ok := entries[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("module %q: %w", name, labmod.ErrModuleEntryNotMap)
		}

		entry := &labmod.RawModule{Name: name}
		keys := make([]string, 0, len(attrs))
		for key := range attrs {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			entry.Attrs = append(entry.Attrs, labmod.Attr{Key: key, Value: attrs[key]})
		}
		section.Entries = append(section.Entries, entry)
	}
	return section, nil
}

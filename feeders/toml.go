package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/openlabkit/labmod"
)

// TomlFeeder reads a TOML configuration document from a file. Section,
// module, and attribute order follow the file via toml.MetaData; the
// module.Class key must be quoted in TOML ("module.Class") since it
// contains a dot.
type TomlFeeder struct {
	Path string
}

// FeedDocument implements DocumentFeeder.
func (t TomlFeeder) FeedDocument() (*labmod.Document, error) {
	var raw map[string]any
	md, err := toml.DecodeFile(t.Path, &raw)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", t.Path, err)
	}

	// md.Keys lists every defined key in file order, but implicit parent
	// tables ([hardware.cam] defines hardware without a one-element key for
	// it) appear only as prefixes of deeper keys. Section and module order
	// are therefore derived by deduplicating the first one and two key
	// elements. Keys under the global table are settings, not modules.
	var sectionOrder []string
	moduleOrder := map[string][]string{}
	seenSection := map[string]bool{}
	seenModule := map[string]bool{}
	for _, key := range md.Keys() {
		if len(key) == 0 {
			continue
		}
		section := key[0]
		if !seenSection[section] {
			seenSection[section] = true
			sectionOrder = append(sectionOrder, section)
		}
		if len(key) < 2 || section == "global" {
			continue
		}
		qualified := section + "\x00" + key[1]
		if !seenModule[qualified] {
			seenModule[qualified] = true
			moduleOrder[section] = append(moduleOrder[section], key[1])
		}
	}

	doc, err := documentFromMap(raw, sectionOrder, func(section string) []string {
		return moduleOrder[section]
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Path, err)
	}
	return doc, nil
}

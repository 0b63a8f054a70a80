package feeders

import (
	"fmt"
	"os"

	"github.com/openlabkit/labmod"
)

// YamlFeeder reads a YAML configuration document from a file. YAML is the
// native encoding: document order and source line numbers are preserved, so
// diagnostics point at the offending line.
type YamlFeeder struct {
	Path string
}

// FeedDocument implements DocumentFeeder.
func (y YamlFeeder) FeedDocument() (*labmod.Document, error) {
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", y.Path, err)
	}
	doc, err := labmod.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.Path, err)
	}
	return doc, nil
}

package feeders

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openlabkit/labmod"
)

// JSONFeeder reads a JSON configuration document from a file. JSON objects
// carry no order, so document order falls back to ascending name order;
// activation plans stay deterministic either way.
type JSONFeeder struct {
	Path string
}

// FeedDocument implements DocumentFeeder.
func (j JSONFeeder) FeedDocument() (*labmod.Document, error) {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", j.Path, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("reading %s: %w", j.Path, err)
	}
	doc, err := documentFromMap(raw, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", j.Path, err)
	}
	return doc, nil
}

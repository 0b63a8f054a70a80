package labmod

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/golobby/cast"
)

// Category classifies a module as hardware, logic, or gui.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryHardware
	CategoryLogic
	CategoryGUI
)

// String returns the category's section name as it appears in documents.
func (c Category) String() string {
	switch c {
	case CategoryHardware:
		return "hardware"
	case CategoryLogic:
		return "logic"
	case CategoryGUI:
		return "gui"
	default:
		return "unknown"
	}
}

// ParseCategory maps a section name to its Category.
// Unrecognized names yield CategoryUnknown.
func ParseCategory(name string) Category {
	switch name {
	case "hardware":
		return CategoryHardware
	case "logic":
		return CategoryLogic
	case "gui":
		return CategoryGUI
	default:
		return CategoryUnknown
	}
}

// allowedTargets is the connector category matrix: gui modules wire to logic,
// logic modules to logic or hardware, hardware modules to hardware only.
var allowedTargets = map[Category][]Category{
	CategoryGUI:      {CategoryLogic},
	CategoryLogic:    {CategoryLogic, CategoryHardware},
	CategoryHardware: {CategoryHardware},
}

// AllowedTargets returns the categories a module of category c may connect to.
func AllowedTargets(c Category) []Category {
	return allowedTargets[c]
}

// Options is the free-form option mapping of a module declaration. The core
// validates option presence only, never types; the typed getters are a
// convenience for module implementations.
type Options map[string]any

// Has reports whether the option key is present.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// String returns the option coerced to a string, or fallback when absent or
// not coercible.
func (o Options) String(key, fallback string) string {
	if s, ok := scalarString(o[key]); ok {
		return s
	}
	return fallback
}

// Int returns the option coerced to an int, or fallback.
func (o Options) Int(key string, fallback int) int {
	if n, ok := scalarInt(o[key]); ok {
		return n
	}
	return fallback
}

// Float returns the option coerced to a float64, or fallback.
func (o Options) Float(key string, fallback float64) float64 {
	if f, ok := scalarFloat(o[key]); ok {
		return f
	}
	return fallback
}

// Bool returns the option coerced to a bool, or fallback.
func (o Options) Bool(key string, fallback bool) bool {
	if b, ok := scalarBool(o[key]); ok {
		return b
	}
	return fallback
}

// Scalar coercions for decoded document values. Integer-valued attributes
// arrive as int (yaml.v3), int64 (toml), or float64 (encoding/json) depending
// on the document encoding; string-typed values are parsed with cast.
// Mappings and sequences never coerce.

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case uint64:
		return strconv.FormatUint(s, 10), true
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), true
	}
	return "", false
}

func scalarInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		if parsed, err := cast.FromString(n, cast.Int); err == nil {
			return parsed.(int), true
		}
	}
	return 0, false
}

func scalarFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	case string:
		if parsed, err := cast.FromString(f, cast.Float64); err == nil {
			return parsed.(float64), true
		}
	}
	return 0, false
}

func scalarBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		if parsed, err := cast.FromString(b, cast.Bool); err == nil {
			return parsed.(bool), true
		}
	}
	return false, false
}

// Attribute keys with reserved meaning inside a module entry.
const (
	// ClassKey names the implementation to load. Its value is opaque to
	// the core; the factory registry resolves it.
	ClassKey = "module.Class"

	// ConnectKey introduces the connector submapping.
	ConnectKey = "connect"
)

// ModuleDescriptor is the static, parsed representation of one module
// declaration. Descriptors are immutable after registry construction; a
// reload replaces the descriptor rather than mutating it.
type ModuleDescriptor struct {
	Name       string
	Category   Category
	Class      string
	Options    Options
	Connectors map[string]string

	line int
}

// Line returns the source line the module was declared at.
func (d *ModuleDescriptor) Line() int { return d.line }

// ConnectorNames returns the connector names in ascending order.
func (d *ModuleDescriptor) ConnectorNames() []string {
	names := make([]string, 0, len(d.Connectors))
	for name := range d.Connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether two descriptors declare the same module identically.
// Reload uses this to decide whether a re-resolved descriptor changed.
func (d *ModuleDescriptor) Equal(other *ModuleDescriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.Name == other.Name &&
		d.Category == other.Category &&
		d.Class == other.Class &&
		reflect.DeepEqual(d.Options, other.Options) &&
		reflect.DeepEqual(d.Connectors, other.Connectors)
}

func (d *ModuleDescriptor) String() string {
	return fmt.Sprintf("%s/%s (%s)", d.Category, d.Name, d.Class)
}

// descriptorFromRaw interprets a raw module entry: module.Class becomes the
// class reference, the connect submapping becomes the connector set, and all
// remaining attributes become options.
func descriptorFromRaw(cat Category, raw *RawModule) (*ModuleDescriptor, error) {
	desc := &ModuleDescriptor{
		Name:       raw.Name,
		Category:   cat,
		Options:    Options{},
		Connectors: map[string]string{},
		line:       raw.Line,
	}

	for _, attr := range raw.Attrs {
		switch attr.Key {
		case ClassKey:
			class, ok := scalarString(attr.Value)
			if !ok || class == "" {
				return nil, &MissingClassError{Module: raw.Name, Line: attr.Line}
			}
			desc.Class = class
		case ConnectKey:
			connect, ok := attr.Value.(map[string]any)
			if !ok {
				return nil, &ParseError{
					Line:   attr.Line,
					Reason: fmt.Sprintf("connect block of module %q must be a mapping", raw.Name),
				}
			}
			for connector, target := range connect {
				targetName, ok := target.(string)
				if !ok {
					return nil, &ParseError{
						Line:   attr.Line,
						Reason: fmt.Sprintf("connector %s.%s target must be a module name", raw.Name, connector),
					}
				}
				desc.Connectors[connector] = targetName
			}
		default:
			desc.Options[attr.Key] = attr.Value
		}
	}

	if desc.Class == "" {
		return nil, &MissingClassError{Module: raw.Name, Line: raw.Line}
	}
	return desc, nil
}

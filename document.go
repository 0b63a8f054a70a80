package labmod

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Section names recognized at the top level of a configuration document.
const (
	sectionGlobal = "global"
)

// Document is the parsed, in-memory form of a declarative configuration
// document: three module sections (hardware, logic, gui) plus the global
// section consumed by the surrounding application. Section and entry order
// follow the source document so that activation-plan tie-breaks stay
// deterministic across loads.
type Document struct {
	Global   GlobalConfig
	Sections []*Section

	// UnknownSections records top-level keys that are neither module
	// sections nor global. They are not an error at parse time; the
	// diagnostics reporter turns them into warnings.
	UnknownSections []UnknownSection
}

// Section is one module category's block of the document.
type Section struct {
	Category Category
	Entries  []*RawModule
}

// RawModule is a single module declaration before descriptor extraction:
// its name, source line, and ordered attribute list. The module.Class and
// connect attributes are interpreted by BuildRegistry; everything else
// passes through as options.
type RawModule struct {
	Name  string
	Line  int
	Attrs []Attr
}

// Attr is one attribute of a module entry. Value is a decoded scalar,
// sequence, or mapping.
type Attr struct {
	Key   string
	Line  int
	Value any
}

// Get returns the value for key and whether it was present.
func (m *RawModule) Get(key string) (any, bool) {
	for _, a := range m.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return nil, false
}

// UnknownSection records an unrecognized top-level document key.
type UnknownSection struct {
	Name string
	Line int
}

// GlobalConfig carries the process-wide settings of the global section.
// The core consumes only Startup (the initial activation request); the
// remaining fields configure the surrounding daemon.
type GlobalConfig struct {
	Startup        []string
	ServerAddress  string
	ServerPort     int
	StatusSchedule string

	// Extra holds global keys the core does not interpret.
	Extra map[string]any
}

// Section lookup helpers.

// SectionFor returns the section for the given category, or nil.
func (d *Document) SectionFor(cat Category) *Section {
	for _, s := range d.Sections {
		if s.Category == cat {
			return s
		}
	}
	return nil
}

// ModuleCount returns the total number of module entries across sections.
func (d *Document) ModuleCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Entries)
	}
	return n
}

// ParseDocument parses a declarative configuration document. It is a pure
// transform: no registry or graph state is touched. Structural problems
// (non-mapping sections, duplicate module names within a section, duplicate
// top-level sections) are reported as *ParseError with the offending source
// line.
func ParseDocument(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Line: yamlErrorLine(err), Reason: err.Error()}
	}
	if len(root.Content) == 0 {
		return nil, ErrDocumentEmpty
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, &ParseError{Line: top.Line, Reason: ErrDocumentNotMap.Error()}
	}

	doc := &Document{}
	seen := map[string]int{}

	for i := 0; i+1 < len(top.Content); i += 2 {
		keyNode, valNode := top.Content[i], top.Content[i+1]
		name := keyNode.Value

		if prev, dup := seen[name]; dup {
			return nil, &ParseError{
				Line:   keyNode.Line,
				Reason: fmt.Sprintf("top-level section %q already defined at line %d", name, prev),
			}
		}
		seen[name] = keyNode.Line

		switch {
		case name == sectionGlobal:
			global, err := parseGlobal(valNode)
			if err != nil {
				return nil, err
			}
			doc.Global = global
		case ParseCategory(name) != CategoryUnknown:
			section, err := parseSection(ParseCategory(name), valNode)
			if err != nil {
				return nil, err
			}
			doc.Sections = append(doc.Sections, section)
		default:
			doc.UnknownSections = append(doc.UnknownSections, UnknownSection{Name: name, Line: keyNode.Line})
		}
	}

	if len(doc.Sections) == 0 {
		return nil, ErrDocumentEmpty
	}
	return doc, nil
}

func parseSection(cat Category, node *yaml.Node) (*Section, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		// An empty section is legal; it simply declares no modules.
		return &Section{Category: cat}, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{Line: node.Line, Reason: fmt.Sprintf("%s: %v", cat, ErrSectionNotMap)}
	}

	section := &Section{Category: cat}
	seen := map[string]int{}

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		name := keyNode.Value

		if prev, dup := seen[name]; dup {
			return nil, &ParseError{
				Line:   keyNode.Line,
				Reason: fmt.Sprintf("module %q already defined in section %s at line %d", name, cat, prev),
			}
		}
		seen[name] = keyNode.Line

		entry, err := parseModuleEntry(name, keyNode.Line, valNode)
		if err != nil {
			return nil, err
		}
		section.Entries = append(section.Entries, entry)
	}
	return section, nil
}

func parseModuleEntry(name string, line int, node *yaml.Node) (*RawModule, error) {
	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{Line: node.Line, Reason: fmt.Sprintf("module %q: %v", name, ErrModuleEntryNotMap)}
	}

	entry := &RawModule{Name: name, Line: line}
	seen := map[string]int{}

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		key := keyNode.Value

		if prev, dup := seen[key]; dup {
			return nil, &ParseError{
				Line:   keyNode.Line,
				Reason: fmt.Sprintf("attribute %q of module %q already defined at line %d", key, name, prev),
			}
		}
		seen[key] = keyNode.Line

		var value any
		if err := valNode.Decode(&value); err != nil {
			return nil, &ParseError{Line: valNode.Line, Reason: fmt.Sprintf("attribute %q of module %q: %v", key, name, err)}
		}
		entry.Attrs = append(entry.Attrs, Attr{Key: key, Line: keyNode.Line, Value: value})
	}
	return entry, nil
}

func parseGlobal(node *yaml.Node) (GlobalConfig, error) {
	var global GlobalConfig
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return global, nil
	}
	if node.Kind != yaml.MappingNode {
		return global, &ParseError{Line: node.Line, Reason: "global: " + ErrSectionNotMap.Error()}
	}

	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return global, &ParseError{Line: node.Line, Reason: "global: " + err.Error()}
	}
	return GlobalFromMap(raw)
}

// GlobalFromMap builds a GlobalConfig from a decoded attribute map. It is
// shared by the YAML parser and the alternate-encoding feeders.
func GlobalFromMap(raw map[string]any) (GlobalConfig, error) {
	var global GlobalConfig
	global.Extra = map[string]any{}

	for key, value := range raw {
		switch key {
		case "startup":
			list, ok := value.([]any)
			if !ok {
				return global, fmt.Errorf("global startup must be a sequence, got %T", value)
			}
			for _, item := range list {
				name, ok := scalarString(item)
				if !ok {
					return global, fmt.Errorf("global startup entry must be a module name, got %T", item)
				}
				global.Startup = append(global.Startup, name)
			}
		case "serveraddress":
			addr, ok := scalarString(value)
			if !ok {
				return global, fmt.Errorf("global serveraddress must be a string, got %T", value)
			}
			global.ServerAddress = addr
		case "serverport":
			port, ok := scalarInt(value)
			if !ok {
				return global, fmt.Errorf("global serverport must be a number, got %T", value)
			}
			global.ServerPort = port
		case "status_schedule":
			schedule, ok := scalarString(value)
			if !ok {
				return global, fmt.Errorf("global status_schedule must be a string, got %T", value)
			}
			global.StatusSchedule = schedule
		default:
			global.Extra[key] = value
		}
	}
	return global, nil
}

// yamlErrorLine extracts the line number from a yaml.v3 error message of the
// form "yaml: line N: ...". Returns 0 when no line is present.
func yamlErrorLine(err error) int {
	msg := err.Error()
	idx := strings.Index(msg, "line ")
	if idx < 0 {
		return 0
	}
	rest := msg[idx+len("line "):]
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(rest)
	}
	line, convErr := strconv.Atoi(rest[:end])
	if convErr != nil {
		return 0
	}
	return line
}

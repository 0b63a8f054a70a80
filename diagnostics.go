package labmod

import (
	"fmt"
	"strings"
)

// Severity classifies a diagnostic. Fatal diagnostics refuse activation;
// warnings are reported but do not block.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityFatal
)

func (s Severity) String() string {
	if s == SeverityFatal {
		return "fatal"
	}
	return "warning"
}

// Diagnostic is one validation finding. Module is empty for document-level
// findings.
type Diagnostic struct {
	Severity Severity
	Module   string
	Message  string

	// Err is the underlying typed error for fatal findings, nil for
	// warnings. Errors assembled from diagnostics keep working with
	// errors.Is and errors.As through it.
	Err error
}

func (d Diagnostic) String() string {
	if d.Module == "" {
		return fmt.Sprintf("[%s] %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Module, d.Message)
}

// HasFatal reports whether any diagnostic is fatal.
func HasFatal(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// Validate aggregates every configuration error in the document into a
// single report instead of stopping at the first: registry problems
// (duplicate names, missing classes), graph problems (unresolved connectors,
// self-loops, category mismatches, cycles), and non-blocking findings such
// as modules unreachable from the startup list or option keys colliding
// under case folding.
func Validate(doc *Document) []Diagnostic {
	var diags []Diagnostic

	for _, unknown := range doc.UnknownSections {
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("unknown top-level section %q (line %d) ignored", unknown.Name, unknown.Line),
		})
	}

	diags = append(diags, optionCaseDiagnostics(doc)...)

	reg, err := BuildRegistry(doc)
	if err != nil {
		for _, e := range flattenErrors(err) {
			diags = append(diags, Diagnostic{Severity: SeverityFatal, Module: moduleOf(e), Message: e.Error(), Err: e})
		}
		return diags
	}

	graph, err := BuildGraph(reg)
	if err != nil {
		for _, e := range flattenErrors(err) {
			diags = append(diags, Diagnostic{Severity: SeverityFatal, Module: moduleOf(e), Message: e.Error(), Err: e})
		}
		return diags
	}

	diags = append(diags, startupDiagnostics(doc, reg, graph)...)
	return diags
}

// startupDiagnostics checks the global startup list: unknown startup modules
// are fatal (the initial activation request cannot be satisfied), modules
// unreachable from the list are warnings only.
func startupDiagnostics(doc *Document, reg *Registry, graph *Graph) []Diagnostic {
	var diags []Diagnostic
	if len(doc.Global.Startup) == 0 {
		return nil
	}

	var known []string
	for _, name := range doc.Global.Startup {
		if _, ok := reg.Lookup(name); !ok {
			diags = append(diags, Diagnostic{
				Severity: SeverityFatal,
				Module:   name,
				Message:  fmt.Sprintf("startup list names unknown module %q", name),
				Err:      fmt.Errorf("%w: startup module %q", ErrModuleNotFound, name),
			})
			continue
		}
		known = append(known, name)
	}

	reachable := map[string]bool{}
	for _, name := range graph.DependencyClosure(known...) {
		reachable[name] = true
	}
	for _, desc := range reg.All() {
		if !reachable[desc.Name] {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Module:   desc.Name,
				Message:  "module is not reachable from the startup list and will not be activated",
			})
		}
	}
	return diags
}

// optionCaseDiagnostics flags option keys on the same module that differ only
// by case (seen in real setups, e.g. Autofocus_ref_axis vs autofocus_ref_axis).
// The source material is inconsistent about whether this is intentional, so
// it is reported as a warning, never fatal, and both spellings are kept.
func optionCaseDiagnostics(doc *Document) []Diagnostic {
	var diags []Diagnostic
	for _, section := range doc.Sections {
		for _, raw := range section.Entries {
			byFold := map[string][]string{}
			for _, attr := range raw.Attrs {
				folded := strings.ToLower(attr.Key)
				byFold[folded] = append(byFold[folded], attr.Key)
			}
			for _, keys := range byFold {
				if len(keys) > 1 {
					diags = append(diags, Diagnostic{
						Severity: SeverityWarning,
						Module:   raw.Name,
						Message:  fmt.Sprintf("option keys differ only by case: %s", strings.Join(keys, ", ")),
					})
				}
			}
		}
	}
	return diags
}

// flattenErrors unwraps an errors.Join tree into its leaves.
func flattenErrors(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flattenErrors(e)...)
		}
		return out
	}
	return []error{err}
}

// moduleOf extracts the module name a typed validation error refers to.
func moduleOf(err error) string {
	switch e := err.(type) {
	case *DuplicateModuleNameError:
		return e.Name
	case *MissingClassError:
		return e.Module
	case *UnresolvedConnectorError:
		return e.Module
	case *SelfConnectorError:
		return e.Module
	case *CategoryMismatchError:
		return e.Module
	default:
		return ""
	}
}

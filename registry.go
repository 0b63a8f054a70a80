package labmod

import "errors"

// Registry exclusively owns the module descriptors of one loaded document.
// All cross-module relationships are resolved by name lookup through the
// registry, never by direct object links. Iteration order equals document
// order so that downstream tie-breaks stay deterministic.
type Registry struct {
	descriptors map[string]*ModuleDescriptor
	order       []string
}

// BuildRegistry extracts one descriptor per declared module from the
// document. Every problem found (duplicate names across sections, missing
// module.Class, malformed connect blocks) is collected; the joined error
// reports all of them rather than only the first.
func BuildRegistry(doc *Document) (*Registry, error) {
	reg := &Registry{descriptors: map[string]*ModuleDescriptor{}}
	var errs []error

	for _, section := range doc.Sections {
		for _, raw := range section.Entries {
			if existing, dup := reg.descriptors[raw.Name]; dup {
				errs = append(errs, &DuplicateModuleNameError{
					Name:   raw.Name,
					First:  existing.Category,
					Second: section.Category,
					Line:   raw.Line,
				})
				continue
			}

			desc, err := descriptorFromRaw(section.Category, raw)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			reg.descriptors[desc.Name] = desc
			reg.order = append(reg.order, desc.Name)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return reg, nil
}

// Lookup returns the descriptor for name, or nil and false.
func (r *Registry) Lookup(name string) (*ModuleDescriptor, bool) {
	desc, ok := r.descriptors[name]
	return desc, ok
}

// All returns every descriptor in document order.
func (r *Registry) All() []*ModuleDescriptor {
	out := make([]*ModuleDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.descriptors[name])
	}
	return out
}

// Names returns every module name in document order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int { return len(r.order) }

package labmod

import (
	"errors"
	"slices"
	"sort"
)

// Edge is one resolved dependency: Consumer's named connector references
// Provider. Edges are derived from descriptors, never stored independently;
// rebuilding the graph recomputes them.
type Edge struct {
	Consumer  string
	Connector string
	Provider  string
}

// Graph is the validated directed dependency graph of a registry. An edge
// consumer->provider means the consumer cannot activate until the provider
// is Active, and the provider cannot deactivate while the consumer is.
type Graph struct {
	registry   *Registry
	edges      []Edge
	dependsOn  map[string][]string // consumer -> providers, sorted
	dependents map[string][]string // provider -> consumers, sorted
}

// BuildGraph converts connector references into a dependency graph. All
// resolution errors across the whole registry (unknown targets, self-loops,
// category mismatches) plus any cycles among the valid edges are collected
// into one joined error instead of stopping at the first.
func BuildGraph(reg *Registry) (*Graph, error) {
	g := &Graph{
		registry:   reg,
		dependsOn:  map[string][]string{},
		dependents: map[string][]string{},
	}
	var errs []error

	for _, desc := range reg.All() {
		for _, connector := range desc.ConnectorNames() {
			target := desc.Connectors[connector]

			if target == desc.Name {
				errs = append(errs, &SelfConnectorError{Module: desc.Name, Connector: connector})
				continue
			}
			provider, ok := reg.Lookup(target)
			if !ok {
				errs = append(errs, &UnresolvedConnectorError{
					Module:    desc.Name,
					Connector: connector,
					Target:    target,
				})
				continue
			}
			if !slices.Contains(AllowedTargets(desc.Category), provider.Category) {
				errs = append(errs, &CategoryMismatchError{
					Module:    desc.Name,
					Connector: connector,
					Target:    target,
					Got:       provider.Category,
					Allowed:   AllowedTargets(desc.Category),
				})
				continue
			}

			g.edges = append(g.edges, Edge{Consumer: desc.Name, Connector: connector, Provider: target})
			g.dependsOn[desc.Name] = appendUnique(g.dependsOn[desc.Name], target)
			g.dependents[target] = appendUnique(g.dependents[target], desc.Name)
		}
	}

	for name := range g.dependsOn {
		sort.Strings(g.dependsOn[name])
	}
	for name := range g.dependents {
		sort.Strings(g.dependents[name])
	}

	for _, cycle := range g.findCycles() {
		errs = append(errs, &CycleError{Cycle: cycle})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

// Registry returns the registry the graph was built from.
func (g *Graph) Registry() *Registry { return g.registry }

// Edges returns every resolved dependency edge.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// DirectDependencies returns the providers the named module depends on,
// in ascending name order.
func (g *Graph) DirectDependencies(name string) []string {
	out := make([]string, len(g.dependsOn[name]))
	copy(out, g.dependsOn[name])
	return out
}

// DirectDependents returns the consumers directly depending on the named
// module, in ascending name order.
func (g *Graph) DirectDependents(name string) []string {
	out := make([]string, len(g.dependents[name]))
	copy(out, g.dependents[name])
	return out
}

// TransitiveDependents returns every module that directly or transitively
// depends on name, in ascending name order. The named module itself is not
// included.
func (g *Graph) TransitiveDependents(name string) []string {
	return g.closure(name, g.dependents)
}

// TransitiveDependencies returns every module the named module directly or
// transitively depends on, in ascending name order, excluding itself.
func (g *Graph) TransitiveDependencies(name string) []string {
	return g.closure(name, g.dependsOn)
}

// DependencyClosure returns the given roots plus all their transitive
// dependencies, in ascending name order. This is the set of modules that
// must be active for the roots to run.
func (g *Graph) DependencyClosure(roots ...string) []string {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(node string) {
		if seen[node] {
			return
		}
		seen[node] = true
		for _, dep := range g.dependsOn[node] {
			walk(dep)
		}
	}
	for _, root := range roots {
		if _, ok := g.registry.Lookup(root); ok {
			walk(root)
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (g *Graph) closure(start string, next map[string][]string) []string {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(node string) {
		for _, n := range next[node] {
			if !seen[n] {
				seen[n] = true
				walk(n)
			}
		}
	}
	walk(start)
	delete(seen, start)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// findCycles runs a depth-first search with lexicographic tie-breaks on both
// the root order and the adjacency order, so the cycles reported are
// deterministic. Each cycle is rotated to start at its lexicographically
// smallest member; duplicates are dropped.
func (g *Graph) findCycles() [][]string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var stack []string
	var cycles [][]string
	reported := map[string]bool{}

	var visit func(string)
	visit = func(node string) {
		color[node] = gray
		stack = append(stack, node)
		for _, dep := range g.dependsOn[node] {
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				cycle := extractCycle(stack, dep)
				key := cycleKey(cycle)
				if !reported[key] {
					reported[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
	}

	names := g.registry.Names()
	sort.Strings(names)
	for _, name := range names {
		if color[name] == white {
			visit(name)
		}
	}
	return cycles
}

// extractCycle slices the gray stack from the first occurrence of head and
// rotates the result so the smallest name leads.
func extractCycle(stack []string, head string) []string {
	start := 0
	for i, name := range stack {
		if name == head {
			start = i
			break
		}
	}
	cycle := make([]string, len(stack)-start)
	copy(cycle, stack[start:])

	min := 0
	for i, name := range cycle {
		if name < cycle[min] {
			min = i
		}
	}
	rotated := make([]string, 0, len(cycle))
	rotated = append(rotated, cycle[min:]...)
	rotated = append(rotated, cycle[:min]...)
	return rotated
}

func cycleKey(cycle []string) string {
	key := ""
	for _, name := range cycle {
		key += name + "\x00"
	}
	return key
}

func appendUnique(list []string, item string) []string {
	if slices.Contains(list, item) {
		return list
	}
	return append(list, item)
}

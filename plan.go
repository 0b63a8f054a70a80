package labmod

import (
	"fmt"
	"sort"
)

// ActivationPlan is an ordered sequence of module names such that for every
// dependency edge, the provider precedes its consumers. Plans are recomputed
// whenever the registry changes.
type ActivationPlan []string

// Index returns the position of name in the plan, or -1.
func (p ActivationPlan) Index(name string) int {
	for i, n := range p {
		if n == name {
			return i
		}
	}
	return -1
}

// Reversed returns the plan in reverse order, the order modules are torn
// down in.
func (p ActivationPlan) Reversed() ActivationPlan {
	out := make(ActivationPlan, len(p))
	for i, name := range p {
		out[len(p)-1-i] = name
	}
	return out
}

// Restrict returns the plan filtered to the given name set, preserving
// relative order.
func (p ActivationPlan) Restrict(names []string) ActivationPlan {
	keep := map[string]bool{}
	for _, name := range names {
		keep[name] = true
	}
	var out ActivationPlan
	for _, name := range p {
		if keep[name] {
			out = append(out, name)
		}
	}
	return out
}

// Plan computes the full activation order of the graph with a stable
// topological sort: among the modules whose dependencies are all planned at
// a given step, the one with the smallest name is picked. On a validated
// acyclic graph this never fails; the error return guards against a graph
// that skipped validation.
func (g *Graph) Plan() (ActivationPlan, error) {
	return g.planOver(g.registry.Names())
}

// PlanFor computes the activation order for the dependency closure of the
// given root modules only. Roots not present in the registry are ignored;
// the surrounding application warns about them via the diagnostics reporter.
func (g *Graph) PlanFor(roots ...string) (ActivationPlan, error) {
	return g.planOver(g.DependencyClosure(roots...))
}

func (g *Graph) planOver(names []string) (ActivationPlan, error) {
	inSet := map[string]bool{}
	for _, name := range names {
		inSet[name] = true
	}

	// Indegree counts unplanned providers within the subset.
	indegree := map[string]int{}
	for _, name := range names {
		indegree[name] = 0
		for _, dep := range g.dependsOn[name] {
			if inSet[dep] {
				indegree[name]++
			}
		}
	}

	var ready []string
	for _, name := range names {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	plan := make(ActivationPlan, 0, len(names))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		plan = append(plan, name)

		for _, consumer := range g.dependents[name] {
			if !inSet[consumer] {
				continue
			}
			indegree[consumer]--
			if indegree[consumer] == 0 {
				ready = insertSorted(ready, consumer)
			}
		}
	}

	if len(plan) != len(names) {
		// Unreachable on a graph that passed BuildGraph.
		return nil, fmt.Errorf("%w: %d of %d modules planned", ErrCircularDependency, len(plan), len(names))
	}
	return plan, nil
}

func insertSorted(list []string, item string) []string {
	i := sort.SearchStrings(list, item)
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = item
	return list
}

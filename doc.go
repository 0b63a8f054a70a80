// Package labmod provides a declarative module-graph loader, dependency
// resolver, and lifecycle manager for modular laboratory-instrument-control
// applications.
//
// An instrument setup is described by a declarative configuration document
// with three sections (hardware, logic, gui), each enumerating named modules.
// A module declares the class implementing it, free-form options, and a set
// of named connectors referencing the modules it depends on. labmod parses
// the document, resolves the connector graph, validates it (missing targets,
// duplicate names, category mismatches, cycles), computes a deterministic
// activation order, and drives each module through its lifecycle:
//
//	Unloaded -> Loading -> Active -> Deactivating -> Unloaded
//
// with an Error state reachable from any other on failure.
//
// Basic usage:
//
//	doc, err := labmod.ParseDocument(data)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if diags := labmod.Validate(doc); labmod.HasFatal(diags) {
//		for _, d := range diags {
//			fmt.Println(d)
//		}
//		os.Exit(1)
//	}
//	mgr, err := labmod.NewManager(labmod.StaticSource(doc), factories, labmod.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := mgr.ActivateAll(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The concrete instrument drivers and GUI widgets are out of scope: the core
// only knows that a module is constructed from a class reference by a
// registered factory and exposes OnActivate/OnDeactivate hooks. Connector
// targets are handed to the consumer at activation time, after every provider
// has reached the Active state.
package labmod

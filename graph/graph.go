// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

// Package graph implements the declarative computation graph the engine executes:
// a DAG of operator Nodes connected by named, typed NodeArg edges.
//
// A Graph is built incrementally with AddNode and then validated with Resolve,
// which checks structure (duplicates, dangling references, arity, cycles),
// propagates types and shapes across edges using the registered operator Schemas,
// and establishes a deterministic topological execution order. Resolve either
// succeeds completely or fails without observable partial mutation; a failed or
// edited Graph stays inspectable but is marked unresolved.
//
// Graphs are not safe for concurrent mutation; Resolve must not run concurrently
// with AddNode or SetInitializer.
package graph

import (
	"maps"

	"github.com/OskarBun/onnxruntime/types/shapes"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/pkg/errors"
)

// DefaultOpsetVersion is used for domains not pinned in the Graph's
// domain-to-version map.
const DefaultOpsetVersion = 7

// Graph holds the operator nodes and the named edges connecting them.
//
// Create one with New, add nodes with AddNode, then call Resolve before handing the
// graph to a session.
type Graph struct {
	name            string
	domainToVersion map[string]int

	nodes       []*Node
	nodesByName map[string]*Node
	args        map[string]*NodeArg

	initializers    map[string]*values.Value
	declaredOutputs []string

	// Derived state, valid only while resolved.
	resolved bool
	sorted   []*Node
	producer map[string]*Node
	inputs   []*NodeArg
	outputs  []*NodeArg
}

// New creates an empty Graph. domainToVersion pins the operator-set version used
// for schema and kernel lookups per domain; domains not listed default to
// DefaultOpsetVersion. A nil map pins nothing.
func New(name string, domainToVersion map[string]int) *Graph {
	g := &Graph{
		name:            name,
		domainToVersion: make(map[string]int),
		nodesByName:     make(map[string]*Node),
		args:            make(map[string]*NodeArg),
		initializers:    make(map[string]*values.Value),
	}
	maps.Copy(g.domainToVersion, domainToVersion)
	return g
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// OpsetVersion returns the operator-set version pinned for the domain.
func (g *Graph) OpsetVersion(domain string) int {
	if version, found := g.domainToVersion[domain]; found {
		return version
	}
	return DefaultOpsetVersion
}

// AddNode appends a Node applying the operator (opType, domain) to the graph and
// returns it. NodeArgs are interned by name: passing two args with the same name
// connects the corresponding edges. The node name must be unique.
//
// Adding a node marks the graph unresolved; call Resolve again before executing.
func (g *Graph) AddNode(name, opType, domain string, inputs, outputs []*NodeArg,
	attrs map[string]*Attribute) (*Node, error) {
	if _, found := g.nodesByName[name]; found {
		return nil, errors.Wrapf(ErrStructure, "duplicate node name %q", name)
	}
	internedIn, err := g.internArgs(name, inputs)
	if err != nil {
		return nil, err
	}
	internedOut, err := g.internArgs(name, outputs)
	if err != nil {
		return nil, err
	}
	node := &Node{
		name:    name,
		opType:  opType,
		domain:  domain,
		inputs:  internedIn,
		outputs: internedOut,
		attrs:   attrs,
		index:   len(g.nodes),
	}
	g.nodes = append(g.nodes, node)
	g.nodesByName[name] = node
	g.invalidate()
	return node, nil
}

// internArgs replaces the given args with the graph's canonical NodeArg for each
// name, adopting declared types when only one side declares them.
func (g *Graph) internArgs(nodeName string, args []*NodeArg) ([]*NodeArg, error) {
	interned := make([]*NodeArg, len(args))
	for i, arg := range args {
		if !arg.Exists() {
			interned[i] = arg
			continue
		}
		existing, found := g.args[arg.Name()]
		if !found {
			g.args[arg.Name()] = arg
			interned[i] = arg
			continue
		}
		if arg != existing && arg.TypeKnown() {
			if existing.TypeKnown() && !existing.shape.Equal(arg.shape) {
				return nil, errors.Wrapf(ErrTypeResolution,
					"node %q declares value %q as %s, but it was already declared as %s",
					nodeName, arg.Name(), arg.shape, existing.shape)
			}
			existing.shape = arg.shape
		}
		interned[i] = existing
	}
	return interned, nil
}

// SetInitializer binds a constant value to the named edge. Edges backed by an
// initializer are not required in the feeds at Run time.
func (g *Graph) SetInitializer(name string, value *values.Value) {
	g.initializers[name] = value
	g.invalidate()
}

// Initializer returns the constant bound to name, or nil.
func (g *Graph) Initializer(name string) *values.Value { return g.initializers[name] }

// MarkOutput declares the named edge as a graph output. If no output is marked,
// Resolve infers the outputs as every produced edge not consumed by any node.
func (g *Graph) MarkOutput(name string) {
	g.declaredOutputs = append(g.declaredOutputs, name)
	g.invalidate()
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Node returns the node with the given name, or nil.
func (g *Graph) Node(name string) *Node { return g.nodesByName[name] }

// NodeArgByName returns the canonical edge endpoint for name, or nil.
func (g *Graph) NodeArgByName(name string) *NodeArg { return g.args[name] }

// IsResolved reports whether the graph passed Resolve since its last mutation.
func (g *Graph) IsResolved() bool { return g.resolved }

// SortedNodes returns the resolved topological execution order.
// It returns ErrNotResolved if the graph isn't resolved.
func (g *Graph) SortedNodes() ([]*Node, error) {
	if !g.resolved {
		return nil, errors.WithStack(ErrNotResolved)
	}
	return g.sorted, nil
}

// Inputs returns the graph inputs: edges consumed by some node, produced by none,
// and not backed by an initializer. Valid after Resolve.
func (g *Graph) Inputs() ([]*NodeArg, error) {
	if !g.resolved {
		return nil, errors.WithStack(ErrNotResolved)
	}
	return g.inputs, nil
}

// Outputs returns the graph outputs. Valid after Resolve.
func (g *Graph) Outputs() ([]*NodeArg, error) {
	if !g.resolved {
		return nil, errors.WithStack(ErrNotResolved)
	}
	return g.outputs, nil
}

// Producer returns the node producing the named edge, or nil for graph inputs and
// initializers. Valid after Resolve.
func (g *Graph) Producer(name string) *Node {
	if !g.resolved {
		return nil
	}
	return g.producer[name]
}

func (g *Graph) invalidate() {
	g.resolved = false
	g.sorted = nil
	g.producer = nil
	g.inputs = nil
	g.outputs = nil
}

// Resolve validates the graph and derives its executable form: it checks for
// duplicate producers, dangling references and arity mismatches, topologically
// sorts the nodes (ties broken by insertion order, so the order is deterministic),
// and propagates types and shapes across edges using the registered Schemas.
//
// On failure the graph is left unchanged and unresolved; the returned error wraps
// ErrStructure or ErrTypeResolution and names the offending node. Resolve is
// idempotent: it re-validates from scratch every call.
func (g *Graph) Resolve() error {
	g.invalidate()

	// Exactly one producer per non-input edge.
	producer := make(map[string]*Node)
	for _, node := range g.nodes {
		for _, out := range node.outputs {
			if !out.Exists() {
				continue
			}
			if prev, found := producer[out.Name()]; found {
				return errors.Wrapf(ErrStructure, "value %q is produced by both node %q and node %q",
					out.Name(), prev.Name(), node.Name())
			}
			producer[out.Name()] = node
		}
	}

	// Arity checks against the operator schemas.
	for _, node := range g.nodes {
		schema, err := LookupSchema(node.opType, node.domain, g.OpsetVersion(node.domain))
		if err != nil {
			return errors.WithMessagef(err, "node %q", node.Name())
		}
		present := 0
		for _, in := range node.inputs {
			if in.Exists() {
				present++
			}
		}
		if present < schema.MinInputs || (schema.MaxInputs >= 0 && len(node.inputs) > schema.MaxInputs) {
			return errors.Wrapf(ErrStructure,
				"node %q (%s) has %d input(s), operator expects between %d and %d",
				node.Name(), node.opType, len(node.inputs), schema.MinInputs, schema.MaxInputs)
		}
		if len(node.outputs) < schema.MinOutputs || (schema.MaxOutputs >= 0 && len(node.outputs) > schema.MaxOutputs) {
			return errors.Wrapf(ErrStructure,
				"node %q (%s) has %d output(s), operator expects between %d and %d",
				node.Name(), node.opType, len(node.outputs), schema.MinOutputs, schema.MaxOutputs)
		}
	}

	// Classify edges: initializers, graph inputs, dangling references.
	staged := make(map[*NodeArg]shapes.Shape)
	shapeOf := func(arg *NodeArg) shapes.Shape {
		if s, found := staged[arg]; found {
			return s
		}
		return arg.shape
	}
	var graphInputs []*NodeArg
	seenInputs := make(map[string]bool)
	consumed := make(map[string]bool)
	for _, node := range g.nodes {
		for _, in := range node.inputs {
			if !in.Exists() {
				continue
			}
			consumed[in.Name()] = true
			if producer[in.Name()] != nil {
				continue
			}
			if init := g.initializers[in.Name()]; init != nil {
				tensor, err := init.Tensor()
				if err != nil {
					return errors.Wrapf(ErrStructure, "initializer %q is not a tensor", in.Name())
				}
				if in.TypeKnown() && !in.shape.Equal(tensor.Shape()) {
					return errors.Wrapf(ErrTypeResolution,
						"initializer %q has shape %s, but value is declared as %s",
						in.Name(), tensor.Shape(), in.shape)
				}
				staged[in] = tensor.Shape()
				continue
			}
			if !in.TypeKnown() {
				return errors.Wrapf(ErrStructure,
					"node %q references value %q, which has no producer, no initializer and no declared type",
					node.Name(), in.Name())
			}
			if !seenInputs[in.Name()] {
				seenInputs[in.Name()] = true
				graphInputs = append(graphInputs, in)
			}
		}
	}

	// Topological sort, stable by insertion order among ready nodes.
	sorted := make([]*Node, 0, len(g.nodes))
	done := make(map[string]bool) // edge name -> produced
	scheduled := make(map[*Node]bool)
	edgeReady := func(name string) bool {
		return done[name] || producer[name] == nil
	}
	for len(sorted) < len(g.nodes) {
		progress := false
		for _, node := range g.nodes {
			if scheduled[node] {
				continue
			}
			ready := true
			for _, in := range node.inputs {
				if in.Exists() && !edgeReady(in.Name()) {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			scheduled[node] = true
			sorted = append(sorted, node)
			for _, out := range node.outputs {
				if out.Exists() {
					done[out.Name()] = true
				}
			}
			progress = true
		}
		if !progress {
			for _, node := range g.nodes {
				if !scheduled[node] {
					return errors.Wrapf(ErrStructure, "graph has a cycle involving node %q", node.Name())
				}
			}
		}
	}

	// Type and shape propagation in execution order.
	for _, node := range sorted {
		schema, err := LookupSchema(node.opType, node.domain, g.OpsetVersion(node.domain))
		if err != nil {
			return errors.WithMessagef(err, "node %q", node.Name())
		}
		inShapes := make([]shapes.Shape, len(node.inputs))
		for i, in := range node.inputs {
			if in.Exists() {
				inShapes[i] = shapeOf(in)
			} else {
				inShapes[i] = shapes.Invalid()
			}
		}
		outShapes, err := schema.Infer(node, inShapes)
		if err != nil {
			return errors.Wrapf(ErrTypeResolution, "node %q: %v", node.Name(), err)
		}
		if len(outShapes) != len(node.outputs) {
			return errors.Wrapf(ErrTypeResolution,
				"node %q: operator %s inferred %d output(s), node declares %d",
				node.Name(), node.opType, len(outShapes), len(node.outputs))
		}
		for i, out := range node.outputs {
			if !out.Exists() {
				continue
			}
			inferred := outShapes[i]
			declared := shapeOf(out)
			if declared.Ok() && !declared.Equal(inferred) {
				return errors.Wrapf(ErrTypeResolution,
					"node %q output %q is declared as %s, but operator %s infers %s",
					node.Name(), out.Name(), declared, node.opType, inferred)
			}
			staged[out] = inferred
		}
	}

	// Graph outputs: declared, or every produced edge not consumed by any node.
	var graphOutputs []*NodeArg
	if len(g.declaredOutputs) > 0 {
		for _, name := range g.declaredOutputs {
			arg := g.args[name]
			if arg == nil || producer[name] == nil {
				return errors.Wrapf(ErrStructure, "declared graph output %q is not produced by any node", name)
			}
			graphOutputs = append(graphOutputs, arg)
		}
	} else {
		for _, node := range sorted {
			for _, out := range node.outputs {
				if out.Exists() && !consumed[out.Name()] {
					graphOutputs = append(graphOutputs, out)
				}
			}
		}
	}

	// All checks passed: commit the staged shapes and the derived state atomically.
	for arg, shape := range staged {
		arg.shape = shape
	}
	g.producer = producer
	g.sorted = sorted
	g.inputs = graphInputs
	g.outputs = graphOutputs
	g.resolved = true
	return nil
}

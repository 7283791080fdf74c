// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/OskarBun/onnxruntime/types/dtypes"
	"github.com/OskarBun/onnxruntime/types/shapes"
)

// NodeArg is a named, typed edge endpoint of the graph.
//
// Its identity (the name) is immutable after creation. The declared element type and
// shape may be unresolved until Graph.Resolve propagates them. An "absent" NodeArg
// (Exists() == false) stands in for an omitted optional input or output.
type NodeArg struct {
	name   string
	shape  shapes.Shape
	exists bool
}

// NewNodeArg creates a named edge endpoint with a declared dtype and shape.
func NewNodeArg(name string, shape shapes.Shape) *NodeArg {
	return &NodeArg{name: name, shape: shape, exists: true}
}

// NewUntypedNodeArg creates a named edge endpoint whose type and shape are left to
// be inferred by Graph.Resolve.
func NewUntypedNodeArg(name string) *NodeArg {
	return &NodeArg{name: name, shape: shapes.Invalid(), exists: true}
}

// AbsentNodeArg stands in for an optional input or output that is not present.
func AbsentNodeArg() *NodeArg {
	return &NodeArg{}
}

// Name of the edge endpoint.
func (a *NodeArg) Name() string { return a.name }

// Exists distinguishes a present NodeArg from an omitted optional one.
func (a *NodeArg) Exists() bool { return a != nil && a.exists }

// Shape declared or inferred for this endpoint. Invalid until typed.
func (a *NodeArg) Shape() shapes.Shape { return a.shape }

// DType declared or inferred for this endpoint.
func (a *NodeArg) DType() dtypes.DType { return a.shape.DType }

// TypeKnown reports whether the endpoint has a declared or inferred type.
func (a *NodeArg) TypeKnown() bool { return a.shape.Ok() }

// String implements fmt.Stringer.
func (a *NodeArg) String() string {
	if !a.Exists() {
		return "<absent>"
	}
	if !a.TypeKnown() {
		return fmt.Sprintf("%s: <untyped>", a.name)
	}
	return fmt.Sprintf("%s: %s", a.name, a.shape)
}

// AttrKind enumerates the types an attribute literal can hold.
type AttrKind int

const (
	AttrInvalid AttrKind = iota
	AttrInt
	AttrFloat
	AttrString
	AttrInts
	AttrFloats
)

// Attribute is a typed literal attached to a Node, e.g. Concat's `axis` or Cast's `to`.
type Attribute struct {
	kind   AttrKind
	i      int64
	f      float32
	s      string
	ints   []int64
	floats []float32
}

// IntAttr creates an int64 attribute.
func IntAttr(value int64) *Attribute { return &Attribute{kind: AttrInt, i: value} }

// FloatAttr creates a float32 attribute.
func FloatAttr(value float32) *Attribute { return &Attribute{kind: AttrFloat, f: value} }

// StringAttr creates a string attribute.
func StringAttr(value string) *Attribute { return &Attribute{kind: AttrString, s: value} }

// IntsAttr creates an []int64 attribute.
func IntsAttr(values ...int64) *Attribute { return &Attribute{kind: AttrInts, ints: values} }

// FloatsAttr creates a []float32 attribute.
func FloatsAttr(values ...float32) *Attribute { return &Attribute{kind: AttrFloats, floats: values} }

// Kind of the attribute literal.
func (a *Attribute) Kind() AttrKind { return a.kind }

// Int returns the attribute as int64; ok is false on kind mismatch.
func (a *Attribute) Int() (value int64, ok bool) { return a.i, a.kind == AttrInt }

// Float returns the attribute as float32; ok is false on kind mismatch.
func (a *Attribute) Float() (value float32, ok bool) { return a.f, a.kind == AttrFloat }

// Str returns the attribute as string; ok is false on kind mismatch.
func (a *Attribute) Str() (value string, ok bool) { return a.s, a.kind == AttrString }

// Ints returns the attribute as []int64; ok is false on kind mismatch.
func (a *Attribute) Ints() (values []int64, ok bool) { return a.ints, a.kind == AttrInts }

// Floats returns the attribute as []float32; ok is false on kind mismatch.
func (a *Attribute) Floats() (values []float32, ok bool) { return a.floats, a.kind == AttrFloats }

// Node is one operator application in the Graph: operator identity (name, op type,
// domain), ordered input and output NodeArg lists, and an attribute mapping.
//
// Nodes are created through Graph.AddNode; every non-input NodeArg has exactly one
// producing Node.
type Node struct {
	name    string
	opType  string
	domain  string
	inputs  []*NodeArg
	outputs []*NodeArg
	attrs   map[string]*Attribute

	// index is the insertion order in the Graph, used as the deterministic
	// tie-break for the topological sort.
	index int
}

// Name of the node, unique within its Graph.
func (n *Node) Name() string { return n.name }

// OpType is the operator identity, e.g. "Add" or "MatMul".
func (n *Node) OpType() string { return n.opType }

// Domain of the operator set this node's op belongs to. Empty for the default domain.
func (n *Node) Domain() string { return n.domain }

// Inputs is the ordered input NodeArg list. Entries may be absent (optional inputs).
func (n *Node) Inputs() []*NodeArg { return n.inputs }

// Outputs is the ordered output NodeArg list. Entries may be absent (optional outputs).
func (n *Node) Outputs() []*NodeArg { return n.outputs }

// Attr returns the named attribute, or nil if not set.
func (n *Node) Attr(name string) *Attribute { return n.attrs[name] }

// IntAttrOr returns the named int attribute, or deflt if unset or of another kind.
func (n *Node) IntAttrOr(name string, deflt int64) int64 {
	if attr := n.attrs[name]; attr != nil {
		if v, ok := attr.Int(); ok {
			return v
		}
	}
	return deflt
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("%s (%s)", n.name, n.opType)
}

// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"sort"
	"sync"

	"github.com/OskarBun/onnxruntime/types/dtypes"
	"github.com/OskarBun/onnxruntime/types/shapes"
	"github.com/pkg/errors"
)

// InferFunc computes the output shapes of a node given the (already resolved)
// shapes of its present inputs. inputs[i] is invalid (not Ok) for absent optional
// inputs. It must return one shape per declared output.
type InferFunc func(node *Node, inputs []shapes.Shape) ([]shapes.Shape, error)

// Schema declares an operator's signature: arity bounds and type/shape inference.
// The resolver validates every node against the schema registered for its
// (op type, domain) under the graph's pinned operator-set version.
type Schema struct {
	OpType string
	Domain string

	// SinceVersion is the first operator-set version this signature applies to.
	// Lookup picks the schema with the highest SinceVersion ≤ the pinned version.
	SinceVersion int

	// Arity bounds. A max of -1 means unbounded (variadic).
	MinInputs, MaxInputs   int
	MinOutputs, MaxOutputs int

	Infer InferFunc
}

type schemaKey struct {
	opType string
	domain string
}

var (
	schemasMu sync.RWMutex
	schemas   = make(map[schemaKey][]*Schema)
)

// RegisterSchema adds an operator schema to the process-wide registry. Meant to be
// called from package init functions; built-in default-domain operators are
// registered by this package.
func RegisterSchema(s *Schema) {
	schemasMu.Lock()
	defer schemasMu.Unlock()
	key := schemaKey{opType: s.OpType, domain: s.Domain}
	schemas[key] = append(schemas[key], s)
	sort.Slice(schemas[key], func(i, j int) bool {
		return schemas[key][i].SinceVersion < schemas[key][j].SinceVersion
	})
}

// LookupSchema finds the operator schema for (opType, domain) effective at the
// given operator-set version.
func LookupSchema(opType, domain string, version int) (*Schema, error) {
	schemasMu.RLock()
	defer schemasMu.RUnlock()
	candidates := schemas[schemaKey{opType: opType, domain: domain}]
	var best *Schema
	for _, s := range candidates {
		if s.SinceVersion <= version {
			best = s
		}
	}
	if best == nil {
		return nil, errors.Wrapf(ErrStructure, "no schema registered for operator %q (domain %q) at opset version %d",
			opType, domain, version)
	}
	return best, nil
}

// inferSame propagates the first present input shape to the single output.
func inferSame(node *Node, inputs []shapes.Shape) ([]shapes.Shape, error) {
	return []shapes.Shape{inputs[0]}, nil
}

// inferBroadcast applies multidirectional broadcasting across all present inputs.
func inferBroadcast(node *Node, inputs []shapes.Shape) ([]shapes.Shape, error) {
	out := inputs[0]
	for _, in := range inputs[1:] {
		var err error
		out, err = shapes.Broadcast(out, in)
		if err != nil {
			return nil, err
		}
	}
	return []shapes.Shape{out}, nil
}

func inferMatMul(node *Node, inputs []shapes.Shape) ([]shapes.Shape, error) {
	lhs, rhs := inputs[0], inputs[1]
	if lhs.DType != rhs.DType {
		return nil, errors.Errorf("MatMul operands have different dtypes: %s vs %s", lhs, rhs)
	}
	if lhs.Rank() != 2 || rhs.Rank() != 2 {
		return nil, errors.Errorf("MatMul supports rank-2 operands, got %s and %s", lhs, rhs)
	}
	if lhs.Dimensions[1] != rhs.Dimensions[0] {
		return nil, errors.Errorf("MatMul inner dimensions disagree: %s x %s", lhs, rhs)
	}
	return []shapes.Shape{shapes.Make(lhs.DType, lhs.Dimensions[0], rhs.Dimensions[1])}, nil
}

func inferCast(node *Node, inputs []shapes.Shape) ([]shapes.Shape, error) {
	to := node.IntAttrOr("to", int64(dtypes.InvalidDType))
	target := dtypes.DType(to)
	if !target.IsValid() {
		return nil, errors.Errorf("Cast requires a valid `to` attribute, got %d", to)
	}
	return []shapes.Shape{shapes.Make(target, inputs[0].Dimensions...)}, nil
}

func inferConcat(node *Node, inputs []shapes.Shape) ([]shapes.Shape, error) {
	axis := int(node.IntAttrOr("axis", 0))
	first := inputs[0]
	if axis < 0 {
		axis += first.Rank()
	}
	if axis < 0 || axis >= first.Rank() {
		return nil, errors.Errorf("Concat axis %d out of range for %s", node.IntAttrOr("axis", 0), first)
	}
	outDims := append([]int{}, first.Dimensions...)
	for _, in := range inputs[1:] {
		if in.DType != first.DType {
			return nil, errors.Errorf("Concat operands have different dtypes: %s vs %s", first, in)
		}
		if in.Rank() != first.Rank() {
			return nil, errors.Errorf("Concat operands have different ranks: %s vs %s", first, in)
		}
		for d := 0; d < first.Rank(); d++ {
			if d == axis {
				continue
			}
			if in.Dimensions[d] != first.Dimensions[d] {
				return nil, errors.Errorf("Concat operands disagree on non-concat axis %d: %s vs %s", d, first, in)
			}
		}
		outDims[axis] += in.Dimensions[axis]
	}
	return []shapes.Shape{shapes.Make(first.DType, outDims...)}, nil
}

// inferDropout passes the input shape through; the optional second output is a
// Bool mask with the same dimensions.
func inferDropout(node *Node, inputs []shapes.Shape) ([]shapes.Shape, error) {
	out := []shapes.Shape{inputs[0]}
	if len(node.Outputs()) > 1 {
		out = append(out, shapes.Make(dtypes.Bool, inputs[0].Dimensions...))
	}
	return out, nil
}

func unarySchema(opType string, since int) *Schema {
	return &Schema{
		OpType: opType, SinceVersion: since,
		MinInputs: 1, MaxInputs: 1, MinOutputs: 1, MaxOutputs: 1,
		Infer: inferSame,
	}
}

func binarySchema(opType string, since int) *Schema {
	return &Schema{
		OpType: opType, SinceVersion: since,
		MinInputs: 2, MaxInputs: 2, MinOutputs: 1, MaxOutputs: 1,
		Infer: inferBroadcast,
	}
}

func init() {
	for _, opType := range []string{"Identity", "Neg", "Abs", "Exp", "Sqrt", "Relu", "Sigmoid", "Tanh"} {
		RegisterSchema(unarySchema(opType, 1))
	}
	for _, opType := range []string{"Add", "Sub", "Mul", "Div"} {
		RegisterSchema(binarySchema(opType, 7))
	}
	RegisterSchema(&Schema{
		OpType: "Sum", SinceVersion: 1,
		MinInputs: 1, MaxInputs: -1, MinOutputs: 1, MaxOutputs: 1,
		Infer: inferBroadcast,
	})
	RegisterSchema(&Schema{
		OpType: "MatMul", SinceVersion: 1,
		MinInputs: 2, MaxInputs: 2, MinOutputs: 1, MaxOutputs: 1,
		Infer: inferMatMul,
	})
	RegisterSchema(&Schema{
		OpType: "Cast", SinceVersion: 6,
		MinInputs: 1, MaxInputs: 1, MinOutputs: 1, MaxOutputs: 1,
		Infer: inferCast,
	})
	RegisterSchema(&Schema{
		OpType: "Concat", SinceVersion: 4,
		MinInputs: 1, MaxInputs: -1, MinOutputs: 1, MaxOutputs: 1,
		Infer: inferConcat,
	})
	RegisterSchema(&Schema{
		OpType: "Dropout", SinceVersion: 1,
		MinInputs: 1, MaxInputs: 1, MinOutputs: 1, MaxOutputs: 2,
		Infer: inferDropout,
	})
}

// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

// Package model loads computation graphs from declarative HCL model files.
//
// A model file holds one `model` block: operator-set pins, typed graph inputs,
// inline initializers, the node list and the declared outputs. Decode turns it
// into a graph.Graph ready to be loaded into a session (the session resolves it).
//
// Example:
//
//	model "scale_and_shift" {
//	  opset { version = 7 }
//
//	  input "x" {
//	    dtype = float32
//	    dims  = [2]
//	  }
//
//	  initializer "bias" {
//	    dtype  = float32
//	    dims   = [2]
//	    values = [10, 20]
//	  }
//
//	  node "add0" {
//	    op      = "Add"
//	    inputs  = ["x", "bias"]
//	    outputs = ["y"]
//	  }
//
//	  output "y" {}
//	}
package model

import (
	"github.com/OskarBun/onnxruntime/graph"
	"github.com/OskarBun/onnxruntime/types/dtypes"
	"github.com/OskarBun/onnxruntime/types/shapes"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"github.com/zclconf/go-cty/cty"
)

type fileConfig struct {
	Model *modelBlock `hcl:"model,block"`
}

type modelBlock struct {
	Name     string `hcl:"name,label"`
	Producer string `hcl:"producer,optional"`

	Opsets       []opsetBlock       `hcl:"opset,block"`
	Inputs       []inputBlock       `hcl:"input,block"`
	Initializers []initializerBlock `hcl:"initializer,block"`
	Nodes        []nodeBlock        `hcl:"node,block"`
	Outputs      []outputBlock      `hcl:"output,block"`
}

type opsetBlock struct {
	Domain  string `hcl:"domain,optional"`
	Version int    `hcl:"version"`
}

type inputBlock struct {
	Name  string `hcl:"name,label"`
	DType string `hcl:"dtype"`
	Dims  []int  `hcl:"dims,optional"`
}

type initializerBlock struct {
	Name   string    `hcl:"name,label"`
	DType  string    `hcl:"dtype"`
	Dims   []int     `hcl:"dims,optional"`
	Values []float64 `hcl:"values"`
}

type nodeBlock struct {
	Name    string      `hcl:"name,label"`
	Op      string      `hcl:"op"`
	Domain  string      `hcl:"domain,optional"`
	Inputs  []string    `hcl:"inputs"`
	Outputs []string    `hcl:"outputs"`
	Attrs   []attrBlock `hcl:"attr,block"`
}

type attrBlock struct {
	Name   string    `hcl:"name,label"`
	Int    *int64    `hcl:"int,optional"`
	Float  *float64  `hcl:"float,optional"`
	Str    *string   `hcl:"string,optional"`
	Ints   []int64   `hcl:"ints,optional"`
	Floats []float64 `hcl:"floats,optional"`
}

type outputBlock struct {
	Name string `hcl:"name,label"`
}

// evalContext exposes every dtype name as a bare identifier, so model files can
// write `dtype = float32` without quotes.
func evalContext() *hcl.EvalContext {
	variables := make(map[string]cty.Value, len(dtypes.MapOfNames))
	for name := range dtypes.MapOfNames {
		variables[name] = cty.StringVal(name)
	}
	return &hcl.EvalContext{Variables: variables}
}

// DecodeFile loads a model file from the local filesystem.
func DecodeFile(path string) (*graph.Graph, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing model file %s: %s", path, diags.Error())
	}
	return decode(file)
}

// DecodeBytes loads a model from an in-memory HCL document. filename is only used
// in diagnostics.
func DecodeBytes(src []byte, filename string) (*graph.Graph, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing model %s: %s", filename, diags.Error())
	}
	return decode(file)
}

func decode(file *hcl.File) (*graph.Graph, error) {
	var config fileConfig
	diags := gohcl.DecodeBody(file.Body, evalContext(), &config)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding model: %s", diags.Error())
	}
	if config.Model == nil {
		return nil, errors.Errorf("model file has no `model` block")
	}
	return build(config.Model)
}

func build(m *modelBlock) (*graph.Graph, error) {
	domainToVersion := make(map[string]int, len(m.Opsets))
	for _, opset := range m.Opsets {
		domainToVersion[opset.Domain] = opset.Version
	}
	g := graph.New(m.Name, domainToVersion)

	declared := make(map[string]shapes.Shape, len(m.Inputs))
	for _, in := range m.Inputs {
		dtype := dtypes.FromName(in.DType)
		if !dtype.IsValid() {
			return nil, errors.Errorf("input %q: unknown dtype %q", in.Name, in.DType)
		}
		declared[in.Name] = shapes.Make(dtype, in.Dims...)
	}

	for _, init := range m.Initializers {
		tensor, err := buildInitializer(&init)
		if err != nil {
			return nil, err
		}
		g.SetInitializer(init.Name, values.NewTensorValue(tensor))
	}

	for _, n := range m.Nodes {
		attrs, err := buildAttrs(&n)
		if err != nil {
			return nil, err
		}
		inputs := make([]*graph.NodeArg, len(n.Inputs))
		for i, name := range n.Inputs {
			inputs[i] = nodeArg(name, declared)
		}
		outputs := make([]*graph.NodeArg, len(n.Outputs))
		for i, name := range n.Outputs {
			outputs[i] = nodeArg(name, declared)
		}
		if _, err := g.AddNode(n.Name, n.Op, n.Domain, inputs, outputs, attrs); err != nil {
			return nil, err
		}
	}

	for _, out := range m.Outputs {
		g.MarkOutput(out.Name)
	}
	return g, nil
}

// nodeArg creates the edge endpoint for name: typed when the model declares the
// edge as an input, untyped otherwise. An empty name is an absent optional slot.
func nodeArg(name string, declared map[string]shapes.Shape) *graph.NodeArg {
	if name == "" {
		return graph.AbsentNodeArg()
	}
	if shape, found := declared[name]; found {
		return graph.NewNodeArg(name, shape)
	}
	return graph.NewUntypedNodeArg(name)
}

func buildAttrs(n *nodeBlock) (map[string]*graph.Attribute, error) {
	if len(n.Attrs) == 0 {
		return nil, nil
	}
	attrs := make(map[string]*graph.Attribute, len(n.Attrs))
	for _, a := range n.Attrs {
		var attr *graph.Attribute
		switch {
		case a.Int != nil:
			attr = graph.IntAttr(*a.Int)
		case a.Float != nil:
			attr = graph.FloatAttr(float32(*a.Float))
		case a.Str != nil:
			attr = graph.StringAttr(*a.Str)
		case a.Ints != nil:
			attr = graph.IntsAttr(a.Ints...)
		case a.Floats != nil:
			floats := make([]float32, len(a.Floats))
			for i, f := range a.Floats {
				floats[i] = float32(f)
			}
			attr = graph.FloatsAttr(floats...)
		default:
			return nil, errors.Errorf("node %q attr %q sets no value", n.Name, a.Name)
		}
		if _, dup := attrs[a.Name]; dup {
			return nil, errors.Errorf("node %q declares attr %q twice", n.Name, a.Name)
		}
		attrs[a.Name] = attr
	}
	return attrs, nil
}

// buildInitializer materializes the inline constant. Values are written as HCL
// numbers and converted to the declared dtype.
func buildInitializer(init *initializerBlock) (*values.Tensor, error) {
	dtype := dtypes.FromName(init.DType)
	if !dtype.IsValid() {
		return nil, errors.Errorf("initializer %q: unknown dtype %q", init.Name, init.DType)
	}
	shape := shapes.Make(dtype, init.Dims...)
	if shape.Size() != len(init.Values) {
		return nil, errors.Errorf("initializer %q: shape %s requires %d value(s), got %d",
			init.Name, shape, shape.Size(), len(init.Values))
	}
	var flat any
	switch dtype {
	case dtypes.Float32:
		flat = convertValues(init.Values, func(v float64) float32 { return float32(v) })
	case dtypes.Float64:
		flat = convertValues(init.Values, func(v float64) float64 { return v })
	case dtypes.Float16:
		flat = convertValues(init.Values, func(v float64) float16.Float16 {
			return float16.Fromfloat32(float32(v))
		})
	case dtypes.Int32:
		flat = convertValues(init.Values, func(v float64) int32 { return int32(v) })
	case dtypes.Int64:
		flat = convertValues(init.Values, func(v float64) int64 { return int64(v) })
	case dtypes.Bool:
		flat = convertValues(init.Values, func(v float64) bool { return v != 0 })
	default:
		return nil, errors.Errorf("initializer %q: dtype %s is not supported in model files",
			init.Name, dtype)
	}
	tensor, err := values.FromFlatAndShape(flat, shape, "")
	if err != nil {
		return nil, errors.WithMessagef(err, "initializer %q", init.Name)
	}
	return tensor, nil
}

func convertValues[T dtypes.Supported](in []float64, convert func(float64) T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = convert(v)
	}
	return out
}

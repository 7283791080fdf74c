// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/OskarBun/onnxruntime/graph"
	"github.com/OskarBun/onnxruntime/types/dtypes"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
)

// maxPreviewElements caps the number of tensor elements printed per fetch.
const maxPreviewElements = 8

var (
	hasColor = termenv.ColorProfile() != termenv.Ascii

	titleStyle  = lipgloss.NewStyle().Bold(hasColor)
	headerStyle = lipgloss.NewStyle().Bold(hasColor).Foreground(lipgloss.Color("6"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Headers(headers...)
}

// renderFetches formats the fetched outputs as a table: name, shape, memory and a
// preview of the flat data.
func renderFetches(outputs []*graph.NodeArg, fetches []*values.Value) string {
	table := newTable("OUTPUT", "SHAPE", "SIZE", "VALUES")
	for i, value := range fetches {
		name := "?"
		if i < len(outputs) {
			name = outputs[i].Name()
		}
		if !value.IsTensor() {
			table.Row(name, value.Kind().String(), "", "")
			continue
		}
		tensor := value.MustTensor()
		table.Row(name,
			tensor.Shape().String(),
			humanize.Bytes(uint64(tensor.Memory())),
			previewFlat(tensor))
	}
	return table.Render()
}

// previewFlat prints the first few elements of the tensor's flat data.
func previewFlat(tensor *values.Tensor) string {
	var parts []string
	truncated := false
	switch tensor.DType() {
	case dtypes.Float32:
		for i, v := range values.MustFlatData[float32](tensor) {
			if i == maxPreviewElements {
				truncated = true
				break
			}
			parts = append(parts, fmt.Sprintf("%g", v))
		}
	case dtypes.Float64:
		for i, v := range values.MustFlatData[float64](tensor) {
			if i == maxPreviewElements {
				truncated = true
				break
			}
			parts = append(parts, fmt.Sprintf("%g", v))
		}
	case dtypes.Int32:
		for i, v := range values.MustFlatData[int32](tensor) {
			if i == maxPreviewElements {
				truncated = true
				break
			}
			parts = append(parts, fmt.Sprintf("%d", v))
		}
	case dtypes.Int64:
		for i, v := range values.MustFlatData[int64](tensor) {
			if i == maxPreviewElements {
				truncated = true
				break
			}
			parts = append(parts, fmt.Sprintf("%d", v))
		}
	default:
		return tensor.String()
	}
	if truncated {
		parts = append(parts, "...")
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/OskarBun/onnxruntime/model"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect MODEL",
		Short: "Print a model file's graph without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := model.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			g, err := model.DecodeFile(path)
			if err != nil {
				return err
			}
			if err := g.Resolve(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(g.Name()))

			table := newTable("NODE", "OP", "INPUTS", "OUTPUTS")
			sorted, _ := g.SortedNodes()
			for _, node := range sorted {
				var ins, outs []string
				for _, arg := range node.Inputs() {
					ins = append(ins, arg.String())
				}
				for _, arg := range node.Outputs() {
					outs = append(outs, arg.String())
				}
				table.Row(node.Name(), node.OpType(),
					strings.Join(ins, "\n"), strings.Join(outs, "\n"))
			}
			fmt.Fprintln(out, table.Render())

			inputs, _ := g.Inputs()
			outputs, _ := g.Outputs()
			io := newTable("", "NAME", "TYPE")
			for _, arg := range inputs {
				io.Row("input", arg.Name(), arg.Shape().String())
			}
			for _, arg := range outputs {
				io.Row("output", arg.Name(), arg.Shape().String())
			}
			fmt.Fprintln(out, io.Render())
			return nil
		},
	}
}

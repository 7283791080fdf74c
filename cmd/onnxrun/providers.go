// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/OskarBun/onnxruntime/providers"
	"github.com/spf13/cobra"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the registered execution providers and their operator catalogs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table := newTable("PROVIDER", "STATUS", "KERNELS", "OPERATORS")
			for _, id := range providers.KnownProviderIDs() {
				provider, err := providers.New(id, "")
				if err != nil {
					table.Row(id, fmt.Sprintf("unavailable: %v", err), "", "")
					continue
				}
				registry := provider.KernelRegistry()
				opTypes := registry.OpTypes()
				sort.Strings(opTypes)
				table.Row(id, provider.Description(),
					fmt.Sprintf("%d", registry.NumKernels()),
					strings.Join(opTypes, " "))
				_ = provider.Close()
			}
			fmt.Fprintln(cmd.OutOrStdout(), table.Render())
			return nil
		},
	}
}

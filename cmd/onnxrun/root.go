// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	_ "github.com/OskarBun/onnxruntime/providers/cpu"
	_ "github.com/OskarBun/onnxruntime/providers/notimplemented"
	_ "github.com/OskarBun/onnxruntime/providers/parallel"
)

// NewRootCmd assembles the onnxrun command tree. Flags can also be set through
// environment variables with the ONNXRT_ prefix (e.g. ONNXRT_PROVIDERS).
func NewRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "onnxrun",
		Short:         "Run and inspect inference model files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v.SetEnvPrefix("ONNXRT")
			v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			v.AutomaticEnv()
			return v.BindPFlags(cmd.Flags())
		},
	}
	cmd.PersistentFlags().StringSlice("providers", nil,
		"execution providers to consider, in priority order (default: all registered)")
	cmd.PersistentFlags().Int("verbosity", 0, "log verbosity")

	cmd.AddCommand(newRunCmd(v))
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newProvidersCmd())
	return cmd
}

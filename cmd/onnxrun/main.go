// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

// onnxrun loads declarative model files, inspects them and executes them against
// the registered execution providers.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

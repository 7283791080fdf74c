// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package values

// Fence is a synchronization token attached to a Value whose data may be produced
// asynchronously relative to the caller.
//
// A Fence carries no ownership over the Value's data, only an ordering relation:
// the producer's writes must become visible before any gated consumer's reads.
//
// The engine calls BeforeUsingAsInput on every fenced input before handing it to a
// kernel; callers that retain fetched Values must do the same before reading them.
type Fence interface {
	// Signal marks the producer's writes as complete and visible. Called exactly
	// once by the producing provider.
	Signal()

	// BeforeUsingAsInput blocks until the producer's writes are guaranteed visible
	// to the named consumer provider ("cpu" for host reads). It is safe to call
	// from multiple goroutines and after Signal.
	BeforeUsingAsInput(consumerProviderID string)

	// Signaled reports whether Signal has already been called.
	Signaled() bool
}

// FenceWithErr is implemented by fences whose producing work can fail. Err is only
// meaningful after the fence has been signaled.
type FenceWithErr interface {
	Fence

	// Err returns the terminal error of the producing work, or nil.
	Err() error
}

// FenceErr returns the terminal error of a signaled fence, or nil for fences that
// cannot fail.
func FenceErr(f Fence) error {
	if withErr, ok := f.(FenceWithErr); ok {
		return withErr.Err()
	}
	return nil
}

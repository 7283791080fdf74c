// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package providers

import (
	"github.com/OskarBun/onnxruntime/graph"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// ErrNoKernel indicates the queried provider has no kernel for a node. It is a
// soft outcome: the caller may retry initialization with a different provider.
var ErrNoKernel = errors.New("no kernel for node")

// KernelDef identifies one kernel implementation in a provider's registry:
// the operator it implements and the operator-set version range it covers.
//
// The version policy is explicit: a kernel matches a node when
// SinceVersion ≤ pinned opset version ≤ EndVersion, with EndVersion == 0 meaning
// "open ended". There is no other negotiation.
type KernelDef struct {
	OpType string
	Domain string

	SinceVersion int
	EndVersion   int

	// Provider identity the kernel is bound to.
	Provider string
}

// Matches reports whether the kernel covers the given opset version.
func (d *KernelDef) Matches(opsetVersion int) bool {
	if opsetVersion < d.SinceVersion {
		return false
	}
	return d.EndVersion == 0 || opsetVersion <= d.EndVersion
}

// KernelBuilder constructs a kernel instance for a node. The returned kernel is
// bound to the device context of the provider that owns the registry entry.
type KernelBuilder func(info *KernelCreateInfo, node *graph.Node) (Kernel, error)

// KernelCreateInfo is the registry record for one kernel: its definition plus the
// constructor handle. Opaque to the engine core beyond "exists or not".
type KernelCreateInfo struct {
	Def     *KernelDef
	Builder KernelBuilder
}

type registryKey struct {
	opType string
	domain string
}

// KernelRegistry is a provider-owned catalog mapping (op type, domain, version) to
// kernel construction metadata.
//
// Registries are populated at provider-construction time and are read-only
// afterwards; lookups are pure functions of the key and safe for unsynchronized
// concurrent use from multiple sessions.
type KernelRegistry struct {
	providerID string
	kernels    map[registryKey][]*KernelCreateInfo
}

// NewKernelRegistry creates an empty registry for the given provider identity.
func NewKernelRegistry(providerID string) *KernelRegistry {
	return &KernelRegistry{
		providerID: providerID,
		kernels:    make(map[registryKey][]*KernelCreateInfo),
	}
}

// ProviderID this registry belongs to.
func (r *KernelRegistry) ProviderID() string { return r.providerID }

// MustRegister adds a kernel to the registry. It panics on overlapping version
// ranges for the same (op type, domain) -- a programming error in the provider,
// registries must be unambiguous.
func (r *KernelRegistry) MustRegister(def *KernelDef, builder KernelBuilder) {
	def.Provider = r.providerID
	key := registryKey{opType: def.OpType, domain: def.Domain}
	for _, existing := range r.kernels[key] {
		if rangesOverlap(existing.Def, def) {
			exceptions.Panicf(
				"provider %q registers overlapping kernels for %s (domain %q): [%d, %d] and [%d, %d]",
				r.providerID, def.OpType, def.Domain,
				existing.Def.SinceVersion, existing.Def.EndVersion, def.SinceVersion, def.EndVersion)
		}
	}
	r.kernels[key] = append(r.kernels[key], &KernelCreateInfo{Def: def, Builder: builder})
}

func rangesOverlap(a, b *KernelDef) bool {
	aEnd, bEnd := a.EndVersion, b.EndVersion
	if aEnd == 0 {
		aEnd = int(^uint(0) >> 1)
	}
	if bEnd == 0 {
		bEnd = int(^uint(0) >> 1)
	}
	return a.SinceVersion <= bEnd && b.SinceVersion <= aEnd
}

// FindKernel returns the kernel construction metadata for the node under the given
// operator-set version, or an error wrapping ErrNoKernel if this provider cannot
// execute the node.
func (r *KernelRegistry) FindKernel(node *graph.Node, opsetVersion int) (*KernelCreateInfo, error) {
	key := registryKey{opType: node.OpType(), domain: node.Domain()}
	for _, info := range r.kernels[key] {
		if info.Def.Matches(opsetVersion) {
			return info, nil
		}
	}
	return nil, errors.Wrapf(ErrNoKernel,
		"provider %q: node %q (%s, domain %q, opset version %d)",
		r.providerID, node.Name(), node.OpType(), node.Domain(), opsetVersion)
}

// NumKernels returns the number of registered kernel entries.
func (r *KernelRegistry) NumKernels() int {
	count := 0
	for _, infos := range r.kernels {
		count += len(infos)
	}
	return count
}

// OpTypes returns the distinct operator types with at least one kernel registered.
func (r *KernelRegistry) OpTypes() []string {
	opTypes := make([]string, 0, len(r.kernels))
	for key := range r.kernels {
		opTypes = append(opTypes, key.opType)
	}
	return opTypes
}

// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

// Package parallel implements an asynchronous execution provider: kernels are
// dispatched to a bounded pool of worker goroutines and their outputs carry
// fences, so independent branches of a graph execute concurrently.
//
// The element math itself is delegated to the host (cpu) provider's kernels; only
// the elementwise subset of its catalog is exposed, operators with data-dependent
// memory movement (MatMul, Cast, Concat) are deliberately left out of the registry.
package parallel

import (
	"reflect"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/OskarBun/onnxruntime/graph"
	"github.com/OskarBun/onnxruntime/providers"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/pkg/errors"
)

// Registers New() as the constructor for the "parallel" provider.
func init() {
	providers.Register(providers.ParallelProviderID, New)
}

// asyncOps is the subset of the host catalog this provider executes, with the
// operator-set version each was introduced in.
var asyncOps = map[string]int{
	"Identity": 1,
	"Neg":      1,
	"Abs":      1,
	"Exp":      1,
	"Sqrt":     1,
	"Relu":     1,
	"Sigmoid":  1,
	"Tanh":     1,
	"Add":      7,
	"Sub":      7,
	"Mul":      7,
	"Div":      7,
	"Sum":      1,
}

// Backend implements providers.ExecutionProvider on a worker-goroutine pool.
type Backend struct {
	host     providers.ExecutionProvider
	registry *providers.KernelRegistry

	maxParallelism int
	currentWorkers atomic.Int32
}

var _ providers.ExecutionProvider = &Backend{}

// New constructs the parallel provider. config optionally holds the maximum number
// of concurrent workers as a decimal integer; empty defaults to GOMAXPROCS.
func New(config string) (providers.ExecutionProvider, error) {
	maxParallelism := runtime.GOMAXPROCS(0)
	if config != "" {
		parsed, err := strconv.Atoi(config)
		if err != nil || parsed <= 0 {
			return nil, errors.Wrapf(providers.ErrUnavailable,
				"parallel provider config %q is not a positive worker count", config)
		}
		maxParallelism = parsed
	}
	host, err := providers.New(providers.CPUProviderID, "")
	if err != nil {
		return nil, errors.WithMessage(err, "parallel provider requires the host provider")
	}
	b := &Backend{host: host, maxParallelism: maxParallelism}
	b.registry = b.buildRegistry()
	return b, nil
}

// ID returns "parallel".
func (b *Backend) ID() string { return providers.ParallelProviderID }

// Description is a longer description of the provider.
func (b *Backend) Description() string {
	return "Asynchronous worker-pool execution provider (fenced outputs)"
}

// KernelRegistry returns the catalog of operators this provider can execute.
func (b *Backend) KernelRegistry() *providers.KernelRegistry { return b.registry }

// Allocator delegates to the host allocator: the pool workers compute on host
// memory, so buffers are interchangeable with the host provider's.
func (b *Backend) Allocator() providers.Allocator { return b.host.Allocator() }

// CreateKernel instantiates the async wrapper for the given node, resolving the
// backing host kernel eagerly so registry mismatches surface at initialization.
func (b *Backend) CreateKernel(info *providers.KernelCreateInfo, node *graph.Node) (providers.Kernel, error) {
	hostInfo, err := b.host.KernelRegistry().FindKernel(node, graph.DefaultOpsetVersion)
	if err != nil {
		return nil, err
	}
	hostKernel, err := b.host.CreateKernel(hostInfo, node)
	if err != nil {
		return nil, err
	}
	return &asyncKernel{backend: b, host: hostKernel}, nil
}

// Close shuts down the inner host provider. In-flight workers keep their buffers.
func (b *Backend) Close() error { return b.host.Close() }

// startWorker runs fn on a new goroutine if the pool has capacity, returning
// whether it did. The caller runs fn inline otherwise.
func (b *Backend) startWorker(fn func()) bool {
	if b.maxParallelism > 0 && b.currentWorkers.Load() >= int32(b.maxParallelism) {
		return false
	}
	b.currentWorkers.Add(1)
	go func() {
		fn()
		b.currentWorkers.Add(-1)
	}()
	return true
}

func (b *Backend) buildRegistry() *providers.KernelRegistry {
	r := providers.NewKernelRegistry(providers.ParallelProviderID)
	builder := func(info *providers.KernelCreateInfo, node *graph.Node) (providers.Kernel, error) {
		// CreateKernel does the real work; the registry only records availability.
		return nil, errors.Errorf("parallel kernels are built through CreateKernel")
	}
	for opType, since := range asyncOps {
		r.MustRegister(&providers.KernelDef{OpType: opType, SinceVersion: since}, builder)
	}
	return r
}

// fence gates consumers of one asynchronously produced output set.
type fence struct {
	done     chan struct{}
	signaled atomic.Bool

	// err is written (at most once) before Signal and read only after the done
	// channel closes, which orders the accesses.
	err error
}

var _ values.FenceWithErr = &fence{}

func newFence() *fence {
	return &fence{done: make(chan struct{})}
}

// Signal marks the producing work complete. Called once, by the worker.
func (f *fence) Signal() {
	f.signaled.Store(true)
	close(f.done)
}

// BeforeUsingAsInput blocks until the producing worker has finished. Host memory
// is coherent, so the consumer identity doesn't matter here.
func (f *fence) BeforeUsingAsInput(_ string) {
	<-f.done
}

// Signaled reports whether the producing work has completed.
func (f *fence) Signaled() bool { return f.signaled.Load() }

// Err returns the producing work's terminal error. Only meaningful after the
// fence has been signaled.
func (f *fence) Err() error { return f.err }

// asyncKernel schedules a host kernel on the worker pool. Compute returns
// immediately with fenced output values; the engine gates every fenced input
// before invoking Compute, so the worker reads synchronized data.
type asyncKernel struct {
	backend *Backend
	host    providers.Kernel
}

func (k *asyncKernel) Compute(kctx *providers.KernelContext) error {
	node := kctx.Node()
	f := newFence()

	// Output buffers are allocated up front from the resolved shapes, so consumers
	// can be handed fenced values before the worker runs.
	outTensors := make([]*values.Tensor, len(node.Outputs()))
	for i, arg := range node.Outputs() {
		if !arg.Exists() {
			continue
		}
		if !arg.TypeKnown() {
			return errors.Errorf("parallel provider requires resolved output shapes, %q has none", arg.Name())
		}
		outTensors[i] = k.backend.Allocator().AllocateTensor(arg.Shape())
		value := values.NewTensorValue(outTensors[i])
		value.SetFence(f)
		kctx.SetOutput(i, value)
	}

	inputs := make([]*values.Value, kctx.NumInputs())
	for i := range inputs {
		inputs[i] = kctx.Input(i)
	}
	run := func() {
		defer f.Signal()
		inner := providers.NewKernelContext(node, k.backend.Allocator(), inputs)
		if err := k.host.Compute(inner); err != nil {
			f.err = err
			return
		}
		for i, out := range outTensors {
			if out == nil {
				continue
			}
			produced := inner.Output(i).MustTensor()
			reflect.Copy(reflect.ValueOf(out.Flat()), reflect.ValueOf(produced.Flat()))
			k.backend.Allocator().ReleaseTensor(produced)
		}
	}
	if !k.backend.startWorker(run) {
		run()
	}
	return nil
}

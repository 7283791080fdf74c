// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

// Package session implements InferenceSession, the engine's execution façade: it
// owns a resolved graph, binds it to one execution provider, captures an immutable
// execution plan and serves concurrent Run calls against it.
//
// A session moves strictly forward through its lifecycle:
//
//	Created -> Loaded -> Initialized -> Ready
//
// with Failed as the terminal error state. Provider binding is resilient: a
// provider that lacks a kernel for some node is skipped and the next candidate is
// tried. When no candidate covers the whole graph, Initialize reports
// ErrNoUsableProvider but leaves the session Loaded for another attempt.
package session

import (
	"fmt"
	"sync"

	"github.com/OskarBun/onnxruntime/graph"
	"github.com/OskarBun/onnxruntime/providers"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// State of the session lifecycle.
type State int

const (
	// Created is the initial state: no graph yet.
	Created State = iota

	// Loaded means a graph has been loaded and resolved.
	Loaded

	// Initialized means an execution provider has been bound and the execution
	// plan captured. Transient: Initialize leaves the session Ready.
	Initialized

	// Ready means the session accepts Run calls.
	Ready

	// Failed is terminal: a lifecycle step failed and the session is unusable.
	Failed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Loaded:
		return "Loaded"
	case Initialized:
		return "Initialized"
	case Ready:
		return "Ready"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNoUsableProvider indicates no candidate execution provider could cover every
// node of the graph. The session stays Loaded: the caller may register another
// provider and retry Initialize.
var ErrNoUsableProvider = errors.New("no usable provider")

// ErrState indicates a lifecycle method was called in the wrong state.
var ErrState = errors.New("invalid session state")

// Options configure an InferenceSession at construction.
type Options struct {
	// LogID prefixes the session's log lines. Defaults to a fresh UUID.
	LogID string

	// LogVerbosity is the klog verbosity level the session logs at. 0 logs only
	// lifecycle transitions.
	LogVerbosity int

	// ProviderConfigs holds per-provider config strings, keyed by provider ID,
	// used when the session constructs default candidates.
	ProviderConfigs map[string]string
}

// RunOptions configure one Run call.
type RunOptions struct {
	// Tag identifies the run in logs. Defaults to a fresh UUID.
	Tag string
}

// planStep is one node of the captured execution plan with its bound kernel.
type planStep struct {
	node   *graph.Node
	kernel providers.Kernel
}

// InferenceSession binds one resolved Graph to one ExecutionProvider and executes
// it. Lifecycle methods (Load, RegisterExecutionProvider, Initialize, Close) are
// serialized; Run is safe to call concurrently once the session is Ready.
type InferenceSession struct {
	mu    sync.Mutex
	opts  Options
	state State

	graph      *graph.Graph
	candidates []providers.ExecutionProvider

	// Bound at Initialize, immutable afterwards.
	active providers.ExecutionProvider
	plan   []planStep
}

// New creates an empty session in the Created state.
func New(opts Options) *InferenceSession {
	if opts.LogID == "" {
		opts.LogID = uuid.NewString()
	}
	return &InferenceSession{opts: opts, state: Created}
}

// State returns the current lifecycle state.
func (s *InferenceSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *InferenceSession) logf(format string, args ...any) {
	klog.V(klog.Level(s.opts.LogVerbosity)).Infof("[%s] %s", s.opts.LogID, fmt.Sprintf(format, args...))
}

// Load attaches the model graph to the session and resolves it. The session must
// be in the Created state. A resolve failure is terminal for the session, but the
// graph itself stays inspectable.
func (s *InferenceSession) Load(g *graph.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Created {
		return errors.Wrapf(ErrState, "Load called in state %s, expected %s", s.state, Created)
	}
	if err := g.Resolve(); err != nil {
		s.state = Failed
		return errors.WithMessagef(err, "loading graph %q", g.Name())
	}
	s.graph = g
	s.state = Loaded
	sorted, _ := g.SortedNodes()
	s.logf("loaded graph %q: %d node(s)", g.Name(), len(sorted))
	return nil
}

// RegisterExecutionProvider appends a candidate provider, tried in registration
// order by Initialize. Must be called before Initialize. The session takes
// ownership: Close closes every registered provider.
//
// If no provider is registered, Initialize constructs candidates from every
// known provider identity.
func (s *InferenceSession) RegisterExecutionProvider(provider providers.ExecutionProvider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Created && s.state != Loaded {
		return errors.Wrapf(ErrState,
			"RegisterExecutionProvider called in state %s, providers are frozen after Initialize", s.state)
	}
	s.candidates = append(s.candidates, provider)
	return nil
}

// Initialize binds the session to the first candidate provider that has a kernel
// for every node of the graph and captures the execution plan. Candidates lacking
// a kernel for some node are skipped with a log line; an unavailable default
// provider is skipped silently.
//
// On success the session is Ready. If no candidate covers the graph, Initialize
// returns an error wrapping ErrNoUsableProvider and the session stays Loaded, so
// the caller may register further providers and retry. Hard failures (broken
// graph, kernel construction errors) are terminal.
func (s *InferenceSession) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loaded {
		return errors.Wrapf(ErrState, "Initialize called in state %s, expected %s", s.state, Loaded)
	}

	candidates := s.candidates
	if len(candidates) == 0 {
		for _, id := range providers.KnownProviderIDs() {
			provider, err := providers.New(id, s.opts.ProviderConfigs[id])
			if err != nil {
				if errors.Is(err, providers.ErrUnavailable) {
					s.logf("provider %q unavailable: %v", id, err)
					continue
				}
				s.state = Failed
				return err
			}
			candidates = append(candidates, provider)
		}
		s.candidates = candidates
	}

	sorted, err := s.graph.SortedNodes()
	if err != nil {
		s.state = Failed
		return err
	}

	var lastNoKernel error
	for _, candidate := range candidates {
		plan, err := s.buildPlan(candidate, sorted)
		if err != nil {
			if errors.Is(err, providers.ErrNoKernel) {
				s.logf("provider %q cannot run the graph: %v", candidate.ID(), err)
				lastNoKernel = err
				continue
			}
			s.state = Failed
			return err
		}
		s.active = candidate
		s.plan = plan
		s.state = Initialized
		s.logf("initialized with provider %q", candidate.ID())
		s.state = Ready
		return nil
	}

	// Missing kernels are a soft failure: stay Loaded so the caller can register
	// a more capable provider and retry.
	if lastNoKernel != nil {
		return errors.Wrapf(ErrNoUsableProvider, "graph %q: last candidate: %v", s.graph.Name(), lastNoKernel)
	}
	return errors.Wrapf(ErrNoUsableProvider, "graph %q: no candidate providers", s.graph.Name())
}

// buildPlan probes the provider's registry for every node and, if complete,
// instantiates the kernels in execution order.
func (s *InferenceSession) buildPlan(provider providers.ExecutionProvider, sorted []*graph.Node) ([]planStep, error) {
	registry := provider.KernelRegistry()
	infos := make([]*providers.KernelCreateInfo, len(sorted))
	for i, node := range sorted {
		info, err := registry.FindKernel(node, s.graph.OpsetVersion(node.Domain()))
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}
	plan := make([]planStep, len(sorted))
	for i, node := range sorted {
		kernel, err := provider.CreateKernel(infos[i], node)
		if err != nil {
			return nil, errors.WithMessagef(err, "creating kernel for node %q", node.Name())
		}
		plan[i] = planStep{node: node, kernel: kernel}
	}
	return plan, nil
}

// Provider returns the bound execution provider, or nil before Initialize.
func (s *InferenceSession) Provider() providers.ExecutionProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Inputs returns the graph's required feed endpoints. Valid once Loaded.
func (s *InferenceSession) Inputs() ([]*graph.NodeArg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		return nil, errors.Wrapf(ErrState, "Inputs called in state %s", s.state)
	}
	return s.graph.Inputs()
}

// Outputs returns the graph's output endpoints. Valid once Loaded.
func (s *InferenceSession) Outputs() ([]*graph.NodeArg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		return nil, errors.Wrapf(ErrState, "Outputs called in state %s", s.state)
	}
	return s.graph.Outputs()
}

// Run executes the plan over the given feeds and returns the requested fetches, in
// outputNames order. An empty outputNames requests every graph output.
//
// A Run failure (bad feeds, kernel error) leaves the session Ready; only lifecycle
// failures are terminal. All fences are signaled by the time Run returns.
func (s *InferenceSession) Run(feeds map[string]*values.Value, outputNames []string,
	opts *RunOptions) ([]*values.Value, error) {
	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return nil, errors.Wrapf(ErrState, "Run called in state %s, expected %s", s.state, Ready)
	}
	// The plan, graph and provider are immutable once Ready: Run proceeds unlocked.
	active, plan, g := s.active, s.plan, s.graph
	s.mu.Unlock()

	tag := ""
	if opts != nil {
		tag = opts.Tag
	}
	if tag == "" {
		tag = uuid.NewString()
	}

	if err := validateFeeds(g, feeds); err != nil {
		return nil, errors.WithMessagef(err, "run %s", tag)
	}

	// Edge name -> value. Seeded with feeds and initializers; kernels add their
	// outputs as they execute.
	available := make(map[string]*values.Value, len(feeds))
	for name, value := range feeds {
		available[name] = value
	}

	// Intermediate tensors produced by the provider are returned to its allocator
	// on every exit path. Fetched values are excluded below, before release.
	var produced []*values.Value
	fetched := make(map[*values.Value]bool)
	defer func() {
		for _, value := range produced {
			if f := value.Fence(); f != nil {
				f.BeforeUsingAsInput(active.ID())
			}
			if fetched[value] || !value.IsTensor() {
				continue
			}
			active.Allocator().ReleaseTensor(value.MustTensor())
		}
	}()

	for _, step := range plan {
		inputs := make([]*values.Value, len(step.node.Inputs()))
		for i, arg := range step.node.Inputs() {
			if !arg.Exists() {
				continue
			}
			value, found := available[arg.Name()]
			if !found {
				if value = g.Initializer(arg.Name()); value == nil {
					return nil, errors.Errorf("run %s: node %q input %q has no value",
						tag, step.node.Name(), arg.Name())
				}
			}
			if f := value.Fence(); f != nil {
				f.BeforeUsingAsInput(active.ID())
				if err := values.FenceErr(f); err != nil {
					return nil, errors.WithMessagef(err, "run %s: producing input %q of node %q",
						tag, arg.Name(), step.node.Name())
				}
			}
			inputs[i] = value
		}
		kctx := providers.NewKernelContext(step.node, active.Allocator(), inputs)
		if err := step.kernel.Compute(kctx); err != nil {
			return nil, errors.WithMessagef(err, "run %s: node %q (%s)",
				tag, step.node.Name(), step.node.OpType())
		}
		for i, arg := range step.node.Outputs() {
			if !arg.Exists() {
				continue
			}
			out := kctx.Output(i)
			if out == nil {
				return nil, errors.Errorf("run %s: node %q produced no value for output %q",
					tag, step.node.Name(), arg.Name())
			}
			available[arg.Name()] = out
			produced = append(produced, out)
		}
	}

	fetches, err := collectFetches(g, available, outputNames)
	if err != nil {
		return nil, errors.WithMessagef(err, "run %s", tag)
	}
	for _, value := range fetches {
		if value != nil {
			fetched[value] = true
		}
	}
	klog.V(klog.Level(1)).Infof("[%s] run %s: %d node(s), %d fetch(es)",
		s.opts.LogID, tag, len(plan), len(fetches))
	return fetches, nil
}

// validateFeeds checks the feeds exactly cover the graph's required inputs.
func validateFeeds(g *graph.Graph, feeds map[string]*values.Value) error {
	inputs, err := g.Inputs()
	if err != nil {
		return err
	}
	if len(feeds) != len(inputs) {
		return errors.Errorf("model requires %d feed(s), got %d", len(inputs), len(feeds))
	}
	for _, arg := range inputs {
		value, found := feeds[arg.Name()]
		if !found {
			return errors.Errorf("missing required feed %q", arg.Name())
		}
		if value.IsTensor() {
			got := value.MustTensor().Shape()
			if !got.Equal(arg.Shape()) {
				return errors.Errorf("feed %q has shape %s, model expects %s",
					arg.Name(), got, arg.Shape())
			}
		}
	}
	for name := range feeds {
		if g.NodeArgByName(name) == nil {
			return errors.Errorf("feed %q is not a model input", name)
		}
	}
	return nil
}

// collectFetches gathers the requested outputs. Requested names must be graph
// outputs; trailing requested outputs with no produced value (absent optional
// outputs) are dropped, so the result may be a prefix of the request.
func collectFetches(g *graph.Graph, available map[string]*values.Value,
	outputNames []string) ([]*values.Value, error) {
	outputs, err := g.Outputs()
	if err != nil {
		return nil, err
	}
	if len(outputNames) == 0 {
		outputNames = make([]string, len(outputs))
		for i, arg := range outputs {
			outputNames[i] = arg.Name()
		}
	}
	isOutput := make(map[string]bool, len(outputs))
	for _, arg := range outputs {
		isOutput[arg.Name()] = true
	}

	fetches := make([]*values.Value, 0, len(outputNames))
	for i, name := range outputNames {
		if !isOutput[name] {
			return nil, errors.Errorf("%q is not a model output", name)
		}
		value, found := available[name]
		if !found {
			// Only a trailing run of absent outputs may be dropped.
			for _, rest := range outputNames[i:] {
				if _, restFound := available[rest]; restFound {
					return nil, errors.Errorf("output %q was not produced", name)
				}
			}
			break
		}
		fetches = append(fetches, value)
	}
	return fetches, nil
}

// Close releases every provider the session owns. The session is unusable
// afterwards.
func (s *InferenceSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, candidate := range s.candidates {
		if err := candidate.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.candidates = nil
	s.active = nil
	s.plan = nil
	s.state = Failed
	return firstErr
}

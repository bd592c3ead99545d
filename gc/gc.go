// Package gc implements NAAb's tracing garbage collector (§4.7): mark-sweep
// over the value graph, with global root tracking and threshold-triggered or
// explicit collection.
//
// The host language (Go) already reclaims unreferenced memory, but NAAb's
// semantics require mark-sweep cycle-breaking to be *observable*: a cyclic
// struct graph (§8 scenario ii) must be reclaimed by gc_collect() once
// unreachable, not left dangling until some unspecified future point. The
// collector therefore keeps its own allocation registry of every tracked
// value handle, computes reachability by traversal the way the spec
// describes, and on sweep clears the structural slots of unmarked values so
// the underlying Go runtime's ordinary collector can reclaim the now-acyclic
// subgraph (§4.7: "ordinary reference counting reclaims it").
package gc

import (
	"sync"

	"github.com/naab-lang/naab/value"
)

// RootSource supplies the live roots the collector should trace from: every
// binding in every live environment chain reachable from the module table,
// the call stack, and any in-flight polyglot snapshots (§4.7).
type RootSource interface {
	GCRoots() []*value.Value
}

// GC is the process's tracing collector. Roots and the allocation registry
// are mutex-guarded so polyglot parallel dispatch can register per-thread
// snapshots as additional roots for the duration of a group (§4.7, §5).
type GC struct {
	mu   sync.Mutex
	live map[*value.Value]struct{}

	threshold     int
	sinceLastGC   int
	collections   int
	lastFreed     int

	extraRoots map[*value.Value][]*value.Value // per-thread polyglot snapshots
}

// New creates a collector that triggers automatically every threshold
// allocations (default 10,000, §4.7).
func New(threshold int) *GC {
	if threshold <= 0 {
		threshold = 10000
	}
	return &GC{live: map[*value.Value]struct{}{}, threshold: threshold, extraRoots: map[*value.Value][]*value.Value{}}
}

// Register records a newly allocated value in the allocation registry and
// triggers a collection if the threshold has been crossed.
func (g *GC) Register(v *value.Value, roots RootSource) {
	g.mu.Lock()
	g.live[v] = struct{}{}
	g.sinceLastGC++
	trigger := g.sinceLastGC >= g.threshold
	g.mu.Unlock()
	if trigger {
		g.Collect(roots)
	}
}

// RegisterSnapshotRoot adds vs as additional GC roots for the lifetime of a
// parallel polyglot dispatch group, keyed by an opaque token the caller
// later passes to ReleaseSnapshotRoot (§4.7, §4.10, §5).
func (g *GC) RegisterSnapshotRoot(token *value.Value, vs []*value.Value) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.extraRoots[token] = vs
}

func (g *GC) ReleaseSnapshotRoot(token *value.Value) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.extraRoots, token)
}

// Collect performs one mark-sweep cycle: iterative worklist over value
// handles reachable from roots, marking each seen handle; then sweep clears
// the structural slots of everything in the registry that was not marked
// (§4.7).
func (g *GC) Collect(roots RootSource) {
	g.mu.Lock()
	defer g.mu.Unlock()

	marked := make(map[*value.Value]struct{}, len(g.live))
	var worklist []*value.Value
	if roots != nil {
		worklist = append(worklist, roots.GCRoots()...)
	}
	for _, extra := range g.extraRoots {
		worklist = append(worklist, extra...)
	}

	for len(worklist) > 0 {
		v := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if v == nil {
			continue
		}
		if _, seen := marked[v]; seen {
			continue
		}
		marked[v] = struct{}{}
		value.Traverse(v, func(child *value.Value) {
			if child == nil {
				return
			}
			if _, seen := marked[child]; !seen {
				worklist = append(worklist, child)
			}
		})
	}

	freed := 0
	for v := range g.live {
		if _, ok := marked[v]; ok {
			continue
		}
		clearStructuralSlots(v)
		delete(g.live, v)
		freed++
	}

	g.sinceLastGC = 0
	g.collections++
	g.lastFreed = freed
}

// clearStructuralSlots breaks cyclic edges out of an unreachable value so
// Go's own collector can reclaim the subgraph (§4.7's "weak references on
// structural slots it traversed").
func clearStructuralSlots(v *value.Value) {
	v.Elems = nil
	v.Dict = nil
	v.DictKeys = nil
	v.Fields = nil
	v.Payload = nil
	if v.Polyglot != nil {
		v.Polyglot.Bindings = nil
	}
}

// Stats is a snapshot of the collector's counters for Go callers. The debug
// stdlib module reads through Live, Collections, and LastFreed instead.
// Allocations is not counted and is always zero.
type Stats struct {
	Allocations int
	Live        int
	Collections int
	LastFreed   int
}

func (g *GC) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{Live: len(g.live), Collections: g.collections, LastFreed: g.lastFreed}
}

// LiveCount reports the number of values currently tracked as reachable, for
// test probes of cycle reclamation (§8 scenario ii).
func (g *GC) LiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

// Live, Collections, and LastFreed satisfy stdlib.GCStatsSource, the seam
// the debug module's gc_stats() builtin reads through (§9 supplemental).
func (g *GC) Live() int { return g.LiveCount() }

func (g *GC) Collections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.collections
}

func (g *GC) LastFreed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastFreed
}

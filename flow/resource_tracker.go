package flow

import (
	"fmt"
	"sync"
	"time"
)

// nodeResourceStats accumulates per-node counters for one Executor or
// BatchRunner lifetime.
type nodeResourceStats struct {
	Inits        int
	Releases     int
	ProcessCalls int
	CacheHits    int
	CacheMisses  int
	TotalLatency time.Duration
}

// ResourceTracker counts, per node, how many times Init/Release/Process ran
// and how many cache hits/misses occurred. It exists to let tests and
// operators verify Flow's core amortization invariant: a node's Init runs
// at most once between any two of its Release calls, regardless of how
// many items pass through a BatchRunner.
type ResourceTracker struct {
	mu    sync.Mutex
	stats map[string]*nodeResourceStats // keyed by node name
}

// NewResourceTracker returns an empty tracker.
func NewResourceTracker() *ResourceTracker {
	return &ResourceTracker{stats: make(map[string]*nodeResourceStats)}
}

func (rt *ResourceTracker) entry(name string) *nodeResourceStats {
	s, ok := rt.stats[name]
	if !ok {
		s = &nodeResourceStats{}
		rt.stats[name] = s
	}
	return s
}

func (rt *ResourceTracker) recordInit(name string) {
	if rt == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.entry(name).Inits++
}

func (rt *ResourceTracker) recordRelease(name string) {
	if rt == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.entry(name).Releases++
}

func (rt *ResourceTracker) recordProcess(name string, latency time.Duration) {
	if rt == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	s := rt.entry(name)
	s.ProcessCalls++
	s.TotalLatency += latency
}

func (rt *ResourceTracker) recordCacheHit(name string) {
	if rt == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.entry(name).CacheHits++
}

func (rt *ResourceTracker) recordCacheMiss(name string) {
	if rt == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.entry(name).CacheMisses++
}

// Snapshot returns a copy of the accumulated per-node stats.
func (rt *ResourceTracker) Snapshot() map[string]nodeResourceStats {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make(map[string]nodeResourceStats, len(rt.stats))
	for k, v := range rt.stats {
		out[k] = *v
	}
	return out
}

// InitCount returns how many times node's Init ran.
func (rt *ResourceTracker) InitCount(name string) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if s, ok := rt.stats[name]; ok {
		return s.Inits
	}
	return 0
}

// String renders a human-readable summary, one line per node.
func (rt *ResourceTracker) String() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := ""
	for name, s := range rt.stats {
		out += fmt.Sprintf("%s: inits=%d releases=%d process=%d hits=%d misses=%d\n",
			name, s.Inits, s.Releases, s.ProcessCalls, s.CacheHits, s.CacheMisses)
	}
	return out
}

// Package metrics exposes the per-peer counters required by §7
// ("ping_to_<peer>", "ack_from_<peer>", "seq_num_diff_<peer>"), grounded on
// perf/vars.go's use of github.com/encodeous/metric + expvar.
package metrics

import (
	"expvar"
	"fmt"
	"sync"

	"github.com/encodeous/metric"
)

// Registry lazily creates and publishes named counters. Unlike
// perf/vars.go's fixed set of package-level variables, peer names are only
// known at runtime, so publication happens on first use.
type Registry struct {
	mu       sync.Mutex
	counters map[string]metric.Metric
	prefix   string
}

func NewRegistry(prefix string) *Registry {
	return &Registry{
		counters: make(map[string]metric.Metric),
		prefix:   prefix,
	}
}

func (r *Registry) counter(name string) metric.Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := metric.NewCounter("10s1s")
	expvar.Publish(fmt.Sprintf("%s:%s", r.prefix, name), c)
	r.counters[name] = c
	return c
}

// SetPingTo counts a single ping sent to peer, matching
// HealthChecker.cpp:162's flat COUNT increment per ping rather than
// sampling the outstanding-ping gauge.
func (r *Registry) SetPingTo(peer string) {
	r.counter("ping_to_" + peer).Add(1)
}

func (r *Registry) SetAckFrom(peer string, seq float64) {
	r.counter("ack_from_" + peer).Add(seq)
}

func (r *Registry) SetSeqNumDiff(peer string, diff float64) {
	r.counter("seq_num_diff_" + peer).Add(diff)
}

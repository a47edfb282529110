// Package web is the admin/observability HTTP surface (healthz, metrics,
// expvar, subscription introspection), entirely separate from the Firehose
// gRPC service itself — it never reads or writes subscription state beyond
// what this registry exposes read-only.
package web

import (
	"sync"
	"time"
)

// SubscriptionStatus is a read-only snapshot of one active Blocks call, for
// the /v2/subscriptions introspection resource. Nothing here is persisted;
// it exists only as long as the subscription's goroutine is alive.
type SubscriptionStatus struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	CurrentBlock uint64    `json:"current_block"`
	LastStep     string    `json:"last_step"`
}

// SubscriptionRegistry tracks in-flight Blocks subscriptions. core/server
// registers one entry per call and updates it as responses are emitted;
// core/web only ever reads it.
type SubscriptionRegistry struct {
	mu   sync.Mutex
	subs map[string]*SubscriptionStatus
}

// NewSubscriptionRegistry builds an empty registry.
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{subs: make(map[string]*SubscriptionStatus)}
}

// Register adds id to the registry and returns an update function the
// caller invokes as each response is produced.
func (r *SubscriptionRegistry) Register(id string) (update func(block uint64, step string), unregister func()) {
	r.mu.Lock()
	r.subs[id] = &SubscriptionStatus{ID: id, StartedAt: timeNow()}
	r.mu.Unlock()

	update = func(block uint64, step string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if s, ok := r.subs[id]; ok {
			s.CurrentBlock = block
			s.LastStep = step
		}
	}
	unregister = func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
	return update, unregister
}

// Snapshot returns a copy of every tracked subscription's current status.
func (r *SubscriptionRegistry) Snapshot() []SubscriptionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SubscriptionStatus, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, *s)
	}
	return out
}

// timeNow is a var, not a direct time.Now() call site, so tests can pin it.
var timeNow = time.Now

// Package registry owns per-execution entity identifiers and dependency
// resolution. A Registry is created per breakdown run and injected where
// needed, so concurrent executions never share counters.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"ticketsmith/internal/logging"
	"ticketsmith/internal/types"
)

// Registry hands out sequential ids per work-item kind. The counters are
// the only mutable state touched from concurrent unit bodies; all access
// goes through one mutex to keep the sequence monotonic.
type Registry struct {
	mu       sync.Mutex
	counters map[string]int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{counters: make(map[string]int)}
}

// Assign returns the next id for the kind, formatted "{PREFIX}-{n}".
// Numbers start at 1, increase strictly per kind, and are never reused
// within one execution.
func (r *Registry) Assign(kind types.Kind) string {
	prefix := kind.Prefix()

	r.mu.Lock()
	r.counters[prefix]++
	n := r.counters[prefix]
	r.mu.Unlock()

	id := fmt.Sprintf("%s-%d", prefix, n)
	logging.Registry("assigned %s", id)
	return id
}

// Counters returns a snapshot of the per-prefix counters for
// checkpointing.
func (r *Registry) Counters() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}

// Restore seeds the counters from a checkpoint so a rerun continues the
// id sequence instead of reusing numbers.
func (r *Registry) Restore(counters map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range counters {
		if v > r.counters[k] {
			r.counters[k] = v
		}
	}
}

// ResolveDependencies rewrites free-text dependency names to assigned
// ids, in place. It must run after every high-level item has an id and
// before subtask fan-out starts. Rules per name: a literal "none" is
// dropped; an exact title match wins; otherwise the first item whose
// title contains the name is used; otherwise the name is dropped with a
// warning. Resolution never hard-fails.
func ResolveDependencies(items []*types.WorkItem) {
	byTitle := make(map[string]*types.WorkItem, len(items))
	for _, it := range items {
		byTitle[strings.ToLower(it.Title)] = it
	}

	for _, it := range items {
		if len(it.Dependencies) == 0 {
			continue
		}
		resolved := make([]string, 0, len(it.Dependencies))
		for _, name := range it.Dependencies {
			trimmed := strings.TrimSpace(name)
			if trimmed == "" || strings.EqualFold(trimmed, "none") {
				continue
			}
			if id, ok := resolve(trimmed, byTitle, items); ok {
				resolved = append(resolved, id)
				continue
			}
			logging.RegistryWarn("dropping unresolvable dependency %q of %s", trimmed, it.ID)
		}
		it.Dependencies = resolved
	}
}

func resolve(name string, byTitle map[string]*types.WorkItem, items []*types.WorkItem) (string, bool) {
	lower := strings.ToLower(name)
	if target, ok := byTitle[lower]; ok {
		return target.ID, true
	}
	// Substring containment: the first item whose title contains the
	// name wins. The iteration order is not part of the contract.
	for _, it := range items {
		title := strings.ToLower(it.Title)
		if title != "" && strings.Contains(title, lower) {
			return it.ID, true
		}
	}
	return "", false
}

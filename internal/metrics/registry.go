package metrics

import (
	"sort"
	"sync"
)

type entry struct {
	enabled bool
	// seq orders entries by discovery so operators can tell recent
	// arrivals from seeded ones.
	seq uint64
}

type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
}

// NewRegistry builds a Registry seeded from the resolved configuration's
// metrics table.
func NewRegistry(table map[string]bool) Registry {
	r := &registry{entries: make(map[string]*entry, len(table))}
	r.seed(table)

	return r
}

func (r *registry) seed(table map[string]bool) {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r.seq++
		r.entries[name] = &entry{enabled: table[name], seq: r.seq}
	}
}

func (r *registry) ReconcileDiscovered(names []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added []string
	for _, name := range names {
		if _, ok := r.entries[name]; ok {
			continue
		}
		r.seq++
		r.entries[name] = &entry{enabled: false, seq: r.seq}
		added = append(added, name)
	}
	sort.Strings(added)

	return added
}

func (r *registry) SetEnabled(updates map[string]bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, enabled := range updates {
		if e, ok := r.entries[name]; ok {
			e.enabled = enabled
			continue
		}
		r.seq++
		r.entries[name] = &entry{enabled: enabled, seq: r.seq}
	}

	return len(updates)
}

func (r *registry) Snapshot() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := make(map[string]bool, len(r.entries))
	for name, e := range r.entries {
		table[name] = e.enabled
	}

	return table
}

func (r *registry) Filter(samples map[string]float64) map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	filtered := make(map[string]float64, len(samples))
	for name, value := range samples {
		e, ok := r.entries[name]
		if !ok {
			r.seq++
			r.entries[name] = &entry{enabled: false, seq: r.seq}
			continue
		}
		if e.enabled {
			filtered[name] = value
		}
	}

	return filtered
}

func (r *registry) Reset(table map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*entry, len(table))
	r.seq = 0
	r.seed(table)
}

func (r *registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

func (r *registry) EnabledCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, e := range r.entries {
		if e.enabled {
			count++
		}
	}

	return count
}

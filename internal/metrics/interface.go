package metrics

// Registry owns the enabled/disabled state of every metric name this
// process has ever observed. Names discovered at collection time start
// disabled so that a device never exposes data nobody asked for.
//
// All methods are safe for concurrent use.
type Registry interface {
	// ReconcileDiscovered records names seen in a collection cycle.
	// Unknown names are inserted disabled; known names are untouched.
	// It returns the newly inserted names in sorted order.
	ReconcileDiscovered(names []string) []string

	// SetEnabled applies enabled-state updates. Names not yet in the
	// registry are inserted with the requested state. It returns the
	// number of entries applied.
	SetEnabled(updates map[string]bool) int

	// Snapshot returns the full table as a name -> enabled map.
	Snapshot() map[string]bool

	// Filter drops every sample whose name is disabled. Unknown names
	// are first auto-discovered as disabled, then dropped.
	Filter(samples map[string]float64) map[string]float64

	// Reset replaces the whole table, discarding previous state.
	Reset(table map[string]bool)

	// Count returns the number of known metric names.
	Count() int

	// EnabledCount returns the number of enabled metric names.
	EnabledCount() int
}

package observer

import (
	"sort"

	"github.com/ianzepp/monk-api/internal/record"
)

// Registry is the immutable-after-construction set of observers the
// pipeline dispatches to. Register/RegisterAsync are meant to be called
// only during process wiring, before any invocation runs (spec §9: "No
// global registry mutation after process start").
type Registry struct {
	sync  map[Ring][]Observer
	async map[Ring][]AsyncObserver
}

// NewRegistry returns an empty registry ready for wiring.
func NewRegistry() *Registry {
	return &Registry{
		sync:  make(map[Ring][]Observer),
		async: make(map[Ring][]AsyncObserver),
	}
}

// Register adds a sync-phase (ring 0-6) observer.
func (r *Registry) Register(o Observer) {
	r.sync[o.Ring()] = append(r.sync[o.Ring()], o)
}

// RegisterAsync adds an async-phase (ring 7-9) observer.
func (r *Registry) RegisterAsync(o AsyncObserver) {
	r.async[o.Ring()] = append(r.async[o.Ring()], o)
}

// selectSync returns ring's applicable observers in a total order:
// priority ascending, ties broken by registration order (spec §8
// invariant 5).
func (r *Registry) selectSync(ring Ring, op record.Operation, schemaName string) []Observer {
	candidates := r.sync[ring]
	selected := make([]Observer, 0, len(candidates))
	for _, o := range candidates {
		if o.AppliesToOperation(op) && o.AppliesToSchema(schemaName) {
			selected = append(selected, o)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Priority() < selected[j].Priority()
	})
	return selected
}

func (r *Registry) selectAsync(ring Ring, op record.Operation, schemaName string) []AsyncObserver {
	candidates := r.async[ring]
	selected := make([]AsyncObserver, 0, len(candidates))
	for _, o := range candidates {
		if o.AppliesToOperation(op) && o.AppliesToSchema(schemaName) {
			selected = append(selected, o)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Priority() < selected[j].Priority()
	})
	return selected
}

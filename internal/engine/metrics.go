package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "mosaic"

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	// Allocations counts cells assigned to participants, by topology.
	Allocations *prometheus.CounterVec

	// AllocationFailures counts terminal allocation failures, by reason
	// ("full_grid" or "no_available_cells").
	AllocationFailures *prometheus.CounterVec

	// CellsGenerated counts cells created by grid generation.
	CellsGenerated prometheus.Counter

	// Edits counts edits submitted directly by participants.
	Edits prometheus.Counter

	// PropagatedEdits counts edits appended to neighbours, by the direction
	// of the neighbour as seen from the edited cell.
	PropagatedEdits *prometheus.CounterVec

	// ValidityChanges counts edits marked valid or invalid after creation.
	ValidityChanges *prometheus.CounterVec
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Allocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cell_allocations_total",
			Help:      "Cells assigned to participants by canvas topology",
		}, []string{"topology"}),
		AllocationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cell_allocation_failures_total",
			Help:      "Allocation calls that found no free contiguous cell",
		}, []string{"reason"}),
		CellsGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "grid_cells_generated_total",
			Help:      "Blank cells created by grid generation and expansion",
		}),
		Edits: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "edits_total",
			Help:      "Edits submitted by participants",
		}),
		PropagatedEdits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "propagated_edits_total",
			Help:      "Edits appended to neighbouring cells by edge propagation",
		}, []string{"direction"}),
		ValidityChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "edit_validity_changes_total",
			Help:      "Edits marked valid or invalid after creation",
		}, []string{"valid"}),
	}
}

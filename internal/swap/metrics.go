package swap

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks swap progress. Nil receivers are safe so the coordinator
// can run unmetered in tests.
type Metrics struct {
	swapsTotal         *prometheus.CounterVec
	escrowDeploysTotal *prometheus.CounterVec
	settlementsTotal   *prometheus.CounterVec
	inFlight           prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	swaps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fusionswap_swaps_total",
		Help: "Swaps by terminal state",
	}, []string{"state"})

	deploys := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fusionswap_escrow_deploys_total",
		Help: "Escrow deployments by leg",
	}, []string{"leg"})

	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fusionswap_settlements_total",
		Help: "Withdrawals and cancellations by leg and result",
	}, []string{"leg", "result"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fusionswap_swaps_in_flight",
		Help: "Swaps currently being orchestrated",
	})

	reg.MustRegister(swaps, deploys, settlements, inFlight)

	return &Metrics{
		swapsTotal:         swaps,
		escrowDeploysTotal: deploys,
		settlementsTotal:   settlements,
		inFlight:           inFlight,
	}
}

func (m *Metrics) swapFinished(state State) {
	if m == nil {
		return
	}
	m.swapsTotal.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) escrowDeployed(leg string) {
	if m == nil {
		return
	}
	m.escrowDeploysTotal.WithLabelValues(leg).Inc()
}

func (m *Metrics) settlement(leg, result string) {
	if m == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(leg, result).Inc()
}

func (m *Metrics) swapStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) swapEnded() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

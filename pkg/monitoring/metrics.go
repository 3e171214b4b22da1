package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LivePeers tracks the number of live connection records.
	LivePeers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classmesh",
		Name:      "peers_live",
		Help:      "Number of live peer connection records.",
	})

	// SignalsRouted counts inbound signaling messages applied to a peer.
	SignalsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classmesh",
		Name:      "signals_routed_total",
		Help:      "Inbound signaling messages applied to a connection.",
	}, []string{"kind"})

	// SignalsDropped counts inbound signaling messages rejected by state guards.
	SignalsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classmesh",
		Name:      "signals_dropped_total",
		Help:      "Inbound signaling messages dropped by state guards.",
	}, []string{"kind", "reason"})

	// Collisions counts offers that superseded an existing record.
	Collisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classmesh",
		Name:      "offer_collisions_total",
		Help:      "Offers that replaced a live connection record.",
	})
)

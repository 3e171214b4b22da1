package session

import (
	"github.com/classmesh/classmesh/pkg/logger"
	"github.com/classmesh/classmesh/pkg/monitoring"
	"github.com/classmesh/classmesh/pkg/relay"
)

// Router dispatches inbound signaling messages to the matching record
// after a state guard. The relay gives no cross-sender ordering, so
// late answers and candidates for superseded records are normal and
// must die here quietly instead of destabilizing a healthy connection.
type Router struct {
	registry *Registry
	factory  *Factory
	log      *logger.Logger
}

func NewRouter(registry *Registry, factory *Factory, log *logger.Logger) *Router {
	return &Router{registry: registry, factory: factory, log: log}
}

// RouteOffer always goes through the factory's collision logic, never
// straight into an existing record.
func (r *Router) RouteOffer(m relay.Offer) {
	if _, err := r.factory.Ensure(m.From, m.Name, Receiver, &m.Offer); err != nil {
		monitoring.SignalsDropped.WithLabelValues("offer", "error").Inc()
		r.log.Warn().Err(err).Msgf("offer from %v failed", m.From)
		return
	}
	monitoring.SignalsRouted.WithLabelValues("offer").Inc()
}

// RouteAnswer applies an answer only to a record in AwaitingAnswer;
// anything else is a late or superseded reply and is dropped.
func (r *Router) RouteAnswer(m relay.Answer) {
	p, ok := r.registry.Find(m.From)
	if !ok {
		monitoring.SignalsDropped.WithLabelValues("answer", "no-record").Inc()
		r.log.Debug().Msgf("answer from %v without record", m.From)
		return
	}
	if s := p.State(); s != StateAwaitingAnswer {
		monitoring.SignalsDropped.WithLabelValues("answer", "state").Inc()
		r.log.Debug().Msgf("answer from %v in state %v, drop", m.From, s)
		return
	}
	if err := p.ApplyAnswer(m.Answer); err != nil {
		monitoring.SignalsDropped.WithLabelValues("answer", "error").Inc()
		r.log.Warn().Err(err).Msgf("answer from %v failed", m.From)
		return
	}
	monitoring.SignalsRouted.WithLabelValues("answer").Inc()
}

// RouteCandidate applies a candidate only to a live record.
func (r *Router) RouteCandidate(m relay.Candidate) {
	p, ok := r.registry.Find(m.From)
	if !ok || p.Terminated() {
		monitoring.SignalsDropped.WithLabelValues("candidate", "no-record").Inc()
		return
	}
	if err := p.AddCandidate(m.Candidate); err != nil {
		monitoring.SignalsDropped.WithLabelValues("candidate", "error").Inc()
		r.log.Debug().Err(err).Msgf("candidate from %v failed", m.From)
		return
	}
	monitoring.SignalsRouted.WithLabelValues("candidate").Inc()
}

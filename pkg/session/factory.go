package session

import (
	"github.com/classmesh/classmesh/pkg/logger"
	"github.com/classmesh/classmesh/pkg/monitoring"
	"github.com/pion/webrtc/v3"
)

// Factory creates connection records and resolves setup races.
//
// Role policy: a joiner learns the roster and initiates toward every
// pre-existing participant; the pre-existing side only ever reacts to
// the inbound offer. One initiator per ordered pair, decided by join
// order, so simultaneous initiation cannot happen.
type Factory struct {
	registry *Registry
	conns    ConnFactory
	signals  signalSender
	events   chan<- peerUpdate
	tracks   func() []webrtc.TrackLocal
	log      *logger.Logger
}

func NewFactory(registry *Registry, conns ConnFactory, signals signalSender,
	events chan<- peerUpdate, tracks func() []webrtc.TrackLocal, log *logger.Logger) *Factory {
	return &Factory{
		registry: registry,
		conns:    conns,
		signals:  signals,
		events:   events,
		tracks:   tracks,
		log:      log,
	}
}

// Ensure resolves the record for a participant:
//
//  1. a record whose underlying connection already terminated is purged;
//  2. an inbound offer always wins over a live record: the existing
//     record is destroyed and a fresh Receiver one negotiates the offer
//     (the remote re-offered, e.g. after its own reconnect);
//  3. a duplicate initiation attempt without an offer is a no-op;
//  4. otherwise a fresh record is created with the shared local stream
//     attached, and negotiation starts according to its role.
func (f *Factory) Ensure(id, name string, role Role, offer *webrtc.SessionDescription) (*Peer, error) {
	if existing, ok := f.registry.Find(id); ok {
		if existing.Terminated() {
			existing.Close()
			f.registry.Remove(id)
		} else if offer != nil {
			monitoring.Collisions.Inc()
			f.log.Info().Msgf("offer from %v supersedes record %v", id, existing.Uid())
			existing.Close()
			f.registry.Remove(id)
		} else {
			f.log.Debug().Msgf("record for %v exists, skip", id)
			return existing, nil
		}
	}

	if offer != nil {
		role = Receiver
	}
	conn, err := f.conns()
	if err != nil {
		return nil, err
	}
	p := newPeer(id, name, role, conn, f.signals, f.events, f.log)
	for _, track := range f.tracks() {
		if terr := conn.AddTrack(track); terr != nil {
			p.log.Warn().Err(terr).Msg("attach local track")
		}
	}
	f.registry.Upsert(id, p)

	if offer != nil {
		p.setState(StateAwaitingOffer)
		if err = p.ApplyOffer(*offer); err != nil {
			p.Close()
			f.registry.Remove(id)
			return nil, err
		}
		return p, nil
	}
	if role == Initiator {
		if err = p.StartOffer(); err != nil {
			p.Close()
			f.registry.Remove(id)
			return nil, err
		}
	}
	return p, nil
}

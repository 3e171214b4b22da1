package session

import (
	"fmt"
	"sync/atomic"

	"github.com/classmesh/classmesh/pkg/logger"
	"github.com/gofrs/uuid"
	"github.com/pion/webrtc/v3"
)

type Role uint8

const (
	// Initiator sends the first offer of a pair. Assigned to the
	// later joiner, which prevents glare without any tie-break.
	Initiator Role = iota
	// Receiver only reacts to an inbound offer.
	Receiver
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "receiver"
}

// NegState is the per-connection progress marker gating which
// signaling messages may be legally applied.
type NegState int32

const (
	StateNew NegState = iota
	StateOffering
	StateAwaitingAnswer
	StateAwaitingOffer
	StateNegotiating
	StateConnected
	// StateClosed is terminal; a closed record is never reused.
	StateClosed
)

func (s NegState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOffering:
		return "offering"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateAwaitingOffer:
		return "awaiting-offer"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type updateKind uint8

const (
	updateClosed updateKind = iota
	updateTrack
)

// peerUpdate is a one-shot upward notification from a record to the
// session loop. Records never hold a reference back to the registry.
type peerUpdate struct {
	id     string
	record string // record uid, guards against superseded records
	kind   updateKind
	track  *webrtc.TrackRemote
}

// signalSender is the outbound half of the relay used by records.
type signalSender interface {
	SendOffer(target string, offer webrtc.SessionDescription)
	SendAnswer(target string, answer webrtc.SessionDescription)
	SendCandidate(target string, candidate webrtc.ICECandidateInit)
}

// Peer is a connection record: one per remote participant, owned
// exclusively by the registry.
type Peer struct {
	id   string
	name string
	uid  string
	role Role

	state int32
	conn  Conn

	// remote tracks are replaced, not merged, on renegotiation
	remote []*webrtc.TrackRemote

	signals signalSender
	events  chan<- peerUpdate
	log     *logger.Logger
}

func newPeer(id, name string, role Role, conn Conn, signals signalSender, events chan<- peerUpdate, log *logger.Logger) *Peer {
	uid := uuid.Must(uuid.NewV4()).String()
	p := &Peer{
		id:      id,
		name:    name,
		uid:     uid,
		role:    role,
		conn:    conn,
		signals: signals,
		events:  events,
		log: log.Extend(log.With().
			Str("peer", id).
			Str("rec", uid[:8]).
			Str("role", role.String())),
	}
	conn.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil || p.State() == StateClosed {
			return
		}
		p.signals.SendCandidate(p.id, candidate.ToJSON())
	})
	conn.OnTrack(func(track *webrtc.TrackRemote) {
		p.emit(peerUpdate{id: p.id, record: p.uid, kind: updateTrack, track: track})
	})
	conn.OnStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug().Msgf("connection state %v", state)
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			p.emit(peerUpdate{id: p.id, record: p.uid, kind: updateClosed})
		}
	})
	return p
}

func (p *Peer) Id() string      { return p.id }
func (p *Peer) Name() string    { return p.name }
func (p *Peer) Uid() string     { return p.uid }
func (p *Peer) Role() Role      { return p.role }
func (p *Peer) State() NegState { return NegState(atomic.LoadInt32(&p.state)) }

func (p *Peer) setState(s NegState) { atomic.StoreInt32(&p.state, int32(s)) }

// Terminated reports whether the underlying connection is already gone.
func (p *Peer) Terminated() bool {
	if p.State() == StateClosed {
		return true
	}
	switch p.conn.State() {
	case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateFailed:
		return true
	}
	return false
}

// StartOffer begins the Initiator negotiation path and
// sends the resulting offer through the relay.
func (p *Peer) StartOffer() error {
	if p.State() != StateNew {
		return fmt.Errorf("%w: offer from %v", ErrSignalingState, p.State())
	}
	p.setState(StateOffering)
	offer, err := p.conn.CreateOffer()
	if err != nil {
		return err
	}
	if err = p.conn.SetLocalDescription(offer); err != nil {
		return err
	}
	p.setState(StateAwaitingAnswer)
	p.signals.SendOffer(p.id, offer)
	p.log.Debug().Msg("offer sent")
	return nil
}

// ApplyOffer runs the Receiver negotiation path: remote offer in,
// local answer out.
func (p *Peer) ApplyOffer(offer webrtc.SessionDescription) error {
	if s := p.State(); s != StateNew && s != StateAwaitingOffer {
		return fmt.Errorf("%w: apply offer from %v", ErrSignalingState, s)
	}
	p.setState(StateNegotiating)
	if err := p.conn.SetRemoteDescription(offer); err != nil {
		return err
	}
	answer, err := p.conn.CreateAnswer()
	if err != nil {
		return err
	}
	if err = p.conn.SetLocalDescription(answer); err != nil {
		return err
	}
	p.signals.SendAnswer(p.id, answer)
	p.setState(StateConnected)
	p.log.Debug().Msg("answer sent")
	return nil
}

// ApplyAnswer completes the Initiator path.
// The caller guards the AwaitingAnswer state.
func (p *Peer) ApplyAnswer(answer webrtc.SessionDescription) error {
	if err := p.conn.SetRemoteDescription(answer); err != nil {
		return err
	}
	p.setState(StateConnected)
	p.log.Debug().Msg("answer applied")
	return nil
}

func (p *Peer) AddCandidate(candidate webrtc.ICECandidateInit) error {
	if p.State() == StateClosed {
		return ErrClosedPeer
	}
	return p.conn.AddICECandidate(candidate)
}

// SetRemoteTracks replaces the remote stream wholesale.
func (p *Peer) SetRemoteTracks(tracks []*webrtc.TrackRemote) { p.remote = tracks }

func (p *Peer) RemoteTracks() []*webrtc.TrackRemote { return p.remote }

// Close makes the record terminal. Errors of an already-terminated
// underlying connection are ignored.
func (p *Peer) Close() {
	if p.State() == StateClosed {
		return
	}
	p.setState(StateClosed)
	if err := p.conn.Close(); err != nil {
		p.log.Debug().Err(err).Msg("close")
	}
	p.log.Debug().Msg("record closed")
}

func (p *Peer) emit(up peerUpdate) {
	select {
	case p.events <- up:
	default:
		p.log.Warn().Msg("peer event dropped")
	}
}

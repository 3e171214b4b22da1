// Package session orchestrates a full mesh of peer connections for one
// room: role assignment, signaling, collision resolution, and the
// side pipelines (attention sampling, transcription, chat).
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/classmesh/classmesh/pkg/attention"
	"github.com/classmesh/classmesh/pkg/config"
	"github.com/classmesh/classmesh/pkg/logger"
	"github.com/classmesh/classmesh/pkg/media"
	"github.com/classmesh/classmesh/pkg/relay"
	"github.com/classmesh/classmesh/pkg/transcript"
)

// Relay is the outbound signaling surface the session depends on.
// *relay.Client satisfies it; tests substitute a fake.
type Relay interface {
	Inbox() <-chan relay.Event
	JoinRoom(room, name, identity, role string)
	signalSender
	SendChat(room, sender, text, tstamp string)
	SendTranscript(room, speaker, text, timestamp string)
	SendAttention(room, name string, attentive bool, confidence, probA, probI float64)
	EndSession(room string)
	Close()
}

// RelayDialer opens a relay connection for a session.
type RelayDialer func(address string, log *logger.Logger) (Relay, error)

type Phase int32

const (
	Idle Phase = iota
	Joining
	Active
	Ended
)

func (p Phase) String() string {
	switch p {
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Ended:
		return "ended"
	}
	return "idle"
}

// Session is one participant's presence in a room. A single goroutine
// (the loop) owns the registry and the roster; everything else talks
// to it through channels. Observer callbacks run on their own
// dispatcher goroutine so handlers may call Leave.
type Session struct {
	conf *config.Config
	log  *logger.Logger

	dial     RelayDialer
	conns    ConnFactory
	observer Observer
	stt      transcript.Source

	relay    Relay
	media    *media.Source
	registry *Registry
	factory  *Factory
	router   *Router
	sampler  *attention.Sampler

	phase      Phase
	phaseMu    sync.Mutex
	roster     map[string]string // id -> display name
	peerEvents chan peerUpdate
	notify     chan func()
	closing    chan struct{}
	closeOnce  sync.Once
	loopDone   chan struct{}
	sttDone    chan struct{}
}

func New(conf *config.Config, log *logger.Logger) *Session {
	s := &Session{
		conf:       conf,
		log:        log.Extend(log.With().Str("room", conf.Relay.Room)),
		roster:     make(map[string]string),
		peerEvents: make(chan peerUpdate, 64),
		notify:     make(chan func(), 256),
		closing:    make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	s.dial = func(address string, log *logger.Logger) (Relay, error) {
		return relay.Connect(address, log)
	}
	return s
}

// SetObserver installs the callback set. Call before Join.
func (s *Session) SetObserver(o Observer) { s.observer = o }

// SetTranscripts installs a speech-to-text source whose finalized
// segments are forwarded to the room. Call before Join.
func (s *Session) SetTranscripts(src transcript.Source) { s.stt = src }

func (s *Session) Phase() Phase {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	return s.phase
}

func (s *Session) setPhase(p Phase) {
	s.phaseMu.Lock()
	s.phase = p
	s.phaseMu.Unlock()
}

// Join acquires local media, connects to the relay, and announces this
// participant. Media failure degrades the session to an empty stream;
// an unreachable relay aborts the whole flow and leaves the session
// joinable again. There is no join ack, the session is active as soon
// as the announcement is written.
//
// A session is single use: after it ends, Join returns ErrSessionEnded
// and a new Session must be created to rejoin.
func (s *Session) Join(ctx context.Context) error {
	s.phaseMu.Lock()
	switch s.phase {
	case Ended:
		s.phaseMu.Unlock()
		return ErrSessionEnded
	case Joining, Active:
		s.phaseMu.Unlock()
		return ErrSessionActive
	}
	s.phase = Joining
	s.phaseMu.Unlock()

	src, err := media.Acquire(s.conf.Media, s.log)
	if err != nil {
		s.log.Warn().Err(err).Msg("joining with an empty stream")
	}
	s.media = src

	if s.conns == nil {
		api, err := NewApiFactory(s.conf.Webrtc, s.log)
		if err != nil {
			s.media.Release()
			s.setPhase(Idle)
			return err
		}
		s.conns = api.NewConn
	}

	r, err := s.dial(s.conf.Relay.Address, s.log)
	if err != nil {
		s.media.Release()
		s.setPhase(Idle)
		return errors.Join(ErrRelayUnreachable, err)
	}
	s.relay = r

	s.registry = NewRegistry(s.log)
	s.factory = NewFactory(s.registry, s.conns, r, s.peerEvents, s.media.Tracks, s.log)
	s.router = NewRouter(s.registry, s.factory, s.log)

	r.JoinRoom(s.conf.Relay.Room, s.conf.Relay.Name, s.conf.Relay.Identity, s.conf.Relay.Role)
	s.setPhase(Active)
	s.log.Info().Msgf("joined as %v (%v)", s.conf.Relay.Name, s.conf.Relay.Role)

	go s.dispatch()
	s.startSampling()
	s.startTranscripts()
	go s.loop(ctx)
	return nil
}

// Leave terminates the session and blocks until teardown is complete.
// Idempotent, and safe to call from observer callbacks.
func (s *Session) Leave() {
	if s.Phase() == Idle {
		return
	}
	s.closeOnce.Do(func() { close(s.closing) })
	<-s.loopDone
}

// SetMuted flips the shared audio stream. Transcription follows the
// microphone: a muted participant produces no transcript segments.
func (s *Session) SetMuted(muted bool) {
	if s.media == nil {
		return
	}
	s.media.SetMuted(muted)
	if s.stt == nil {
		return
	}
	if muted {
		s.stt.Stop()
	} else if err := s.stt.Start(); err != nil {
		s.log.Warn().Err(err).Msg("transcription restart")
	}
}

func (s *Session) Muted() bool { return s.media != nil && s.media.Muted() }

// SendChat posts a text message to the room.
func (s *Session) SendChat(text string) {
	if s.Phase() != Active {
		return
	}
	s.relay.SendChat(s.conf.Relay.Room, s.conf.Relay.Name, text, time.Now().Format(time.RFC3339))
}

// EndSession asks the relay to close the room for everyone. Only the
// moderator may do this; the teardown itself happens when the relay
// echoes the session-ended event back.
func (s *Session) EndSession() error {
	if !s.conf.IsModerator() {
		return ErrNotModerator
	}
	if s.Phase() != Active {
		return ErrNotActive
	}
	s.relay.EndSession(s.conf.Relay.Room)
	return nil
}

// loop is the only goroutine that mutates the registry and the roster.
func (s *Session) loop(ctx context.Context) {
	defer close(s.loopDone)
	defer s.teardown()
	inbox := s.relay.Inbox()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case ev, ok := <-inbox:
			if !ok {
				s.emitEnded("relay connection lost")
				return
			}
			if !s.handleEvent(ev) {
				return
			}
		case up := <-s.peerEvents:
			s.handlePeerUpdate(up)
		}
	}
}

// handleEvent returns false when the event terminates the session.
func (s *Session) handleEvent(ev relay.Event) bool {
	switch m := ev.(type) {
	case relay.Roster:
		// The joiner initiates toward everyone already present.
		for _, u := range m.Users {
			s.roster[u.ID] = u.Name
			if _, err := s.factory.Ensure(u.ID, u.Name, Initiator, nil); err != nil {
				s.log.Warn().Err(err).Msgf("initiate to %v", u.ID)
			}
		}
		s.emitRoster()
	case relay.Joined:
		// The newcomer will offer; nothing to initiate from here.
		s.roster[m.ID] = m.Name
		s.emitRoster()
	case relay.Left:
		if p, ok := s.registry.Find(m.ID); ok {
			p.Close()
			s.registry.Remove(m.ID)
			s.emitPeerClosed(m.ID, p.Name())
		}
		delete(s.roster, m.ID)
		s.emitRoster()
	case relay.Offer:
		if _, ok := s.roster[m.From]; !ok {
			s.roster[m.From] = m.Name
			s.emitRoster()
		}
		s.router.RouteOffer(m)
	case relay.Answer:
		s.router.RouteAnswer(m)
	case relay.Candidate:
		s.router.RouteCandidate(m)
	case relay.SessionEnded:
		s.emitEnded("session ended by moderator")
		return false
	case relay.Disconnected:
		s.log.Warn().Err(m.Err).Msg("relay disconnected")
		s.emitEnded("relay connection lost")
		return false
	case relay.Chat:
		if fn := s.observer.OnChat; fn != nil {
			at, _ := time.Parse(time.RFC3339, m.Time)
			sender, text := m.Sender, m.Text
			s.post(func() { fn(sender, sender, text, at) })
		}
	case relay.PeerAttention:
		if fn := s.observer.OnPeerAttention; fn != nil {
			r := m
			s.post(func() { fn(r.ID, r.Attentive, r.ProbAttentive, r.ProbInattentive) })
		}
	case relay.Transcript:
		if fn := s.observer.OnTranscript; fn != nil {
			speaker, text := m.Speaker, m.Text
			s.post(func() { fn(speaker, text) })
		}
	case relay.ContextUpdated:
		if fn := s.observer.OnNotice; fn != nil {
			text := m.Message
			s.post(func() { fn(text) })
		}
	}
	return true
}

// handlePeerUpdate applies a record's self-reported change, ignoring
// updates from records that have since been superseded.
func (s *Session) handlePeerUpdate(up peerUpdate) {
	p, ok := s.registry.Find(up.id)
	if !ok || p.Uid() != up.record {
		s.log.Debug().Msgf("stale update for %v", up.id)
		return
	}
	switch up.kind {
	case updateTrack:
		p.SetRemoteTracks(append(p.RemoteTracks(), up.track))
		if fn := s.observer.OnPeerStream; fn != nil {
			id, name, track := p.Id(), p.Name(), up.track
			s.post(func() { fn(id, name, track) })
		}
	case updateClosed:
		p.Close()
		s.registry.Remove(up.id)
		s.emitPeerClosed(up.id, p.Name())
	}
}

func (s *Session) teardown() {
	s.setPhase(Ended)
	if s.sampler != nil {
		s.sampler.Stop()
	}
	if s.stt != nil {
		s.stt.Stop()
		if err := s.stt.Close(); err != nil {
			s.log.Warn().Err(err).Msg("transcription close")
		}
		<-s.sttDone
	}
	s.registry.DestroyAll()
	s.media.Release()
	s.relay.Close()
	close(s.notify)
	s.log.Info().Msg("session ended")
}

// startSampling begins periodic attention scoring of the local video.
// Moderators are not scored; neither is a session without a video
// frame source or a configured endpoint.
func (s *Session) startSampling() {
	if s.conf.IsModerator() || s.conf.Attention.Endpoint == "" || s.media.Empty() {
		return
	}
	pipeline := attention.NewHTTP(s.conf.Attention.Endpoint)
	s.sampler = attention.NewSampler(pipeline, s.media, s.conf.Attention.Interval, s.reportAttention)
	s.sampler.Start()
}

// reportAttention runs on the sampler goroutine. A failed score is
// surfaced locally as unknown and nothing goes to the relay.
func (s *Session) reportAttention(res attention.Result, err error) {
	fn := s.observer.OnAttentionStatus
	if err != nil {
		s.log.Debug().Err(err).Msg("attention score failed")
		if fn != nil {
			s.post(func() { fn(StatusUnknown, attention.Result{}) })
		}
		return
	}
	status := StatusInattentive
	if res.Attentive() {
		status = StatusAttentive
	}
	// Service probabilities are percentages, the wire wants fractions.
	s.relay.SendAttention(s.conf.Relay.Room, s.conf.Relay.Name, res.Attentive(),
		res.Confidence/100, res.ProbAttentive/100, res.ProbInattentive/100)
	if fn != nil {
		s.post(func() { fn(status, res) })
	}
}

// startTranscripts forwards finalized local speech to the room.
func (s *Session) startTranscripts() {
	if s.stt == nil {
		return
	}
	s.sttDone = make(chan struct{})
	if err := s.stt.Start(); err != nil {
		s.log.Warn().Err(err).Msg("transcription start")
	}
	go func() {
		defer close(s.sttDone)
		for seg := range s.stt.Segments() {
			s.relay.SendTranscript(s.conf.Relay.Room, s.conf.Relay.Name,
				seg.Text, seg.At.Format(time.RFC3339))
			if fn := s.observer.OnTranscript; fn != nil {
				text := seg.Text
				name := s.conf.Relay.Name
				s.post(func() { fn(name, text) })
			}
		}
	}()
}

func (s *Session) emitRoster() {
	fn := s.observer.OnRosterChange
	if fn == nil {
		return
	}
	roster := make([]RosterEntry, 0, len(s.roster))
	for id, name := range s.roster {
		roster = append(roster, RosterEntry{Id: id, Name: name})
	}
	s.post(func() { fn(roster) })
}

func (s *Session) emitPeerClosed(id, name string) {
	if fn := s.observer.OnPeerClosed; fn != nil {
		s.post(func() { fn(id, name) })
	}
}

func (s *Session) emitEnded(reason string) {
	if fn := s.observer.OnEnded; fn != nil {
		s.post(func() { fn(reason) })
	}
}

// post queues an observer callback for the dispatcher. Never blocks
// the loop; an overwhelmed observer loses notifications.
func (s *Session) post(fn func()) {
	select {
	case s.notify <- fn:
	default:
		s.log.Warn().Msg("observer notification dropped")
	}
}

// dispatch runs observer callbacks off the session loop.
func (s *Session) dispatch() {
	for fn := range s.notify {
		fn()
	}
}

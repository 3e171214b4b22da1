package session

import (
	"sync"
	"testing"
	"time"

	"github.com/classmesh/classmesh/pkg/relay"
	"github.com/pion/webrtc/v3"
)

type fakeConn struct {
	mu          sync.Mutex
	state       webrtc.PeerConnectionState
	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	tracks      []webrtc.TrackLocal
	onCandidate func(*webrtc.ICECandidate)
	onTrack     func(*webrtc.TrackRemote)
	onState     func(webrtc.PeerConnectionState)
	closed      bool
}

func newFakeConn() *fakeConn { return &fakeConn{state: webrtc.PeerConnectionStateNew} }

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (c *fakeConn) SetLocalDescription(d webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = &d
	return nil
}

func (c *fakeConn) SetRemoteDescription(d webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = &d
	return nil
}

func (c *fakeConn) AddICECandidate(i webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, i)
	return nil
}

func (c *fakeConn) AddTrack(t webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, t)
	return nil
}

func (c *fakeConn) OnICECandidate(fn func(*webrtc.ICECandidate)) { c.onCandidate = fn }
func (c *fakeConn) OnTrack(fn func(*webrtc.TrackRemote)) { c.onTrack = fn }
func (c *fakeConn) OnStateChange(fn func(webrtc.PeerConnectionState)) { c.onState = fn }

func (c *fakeConn) State() webrtc.PeerConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) setState(s webrtc.PeerConnectionState) {
	c.mu.Lock()
	c.state = s
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.state = webrtc.PeerConnectionStateClosed
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeRelay records outbound signaling and lets tests feed the inbox.
type fakeRelay struct {
	mu          sync.Mutex
	inbox       chan relay.Event
	offers      []string
	answers     []string
	candidates  []string
	chats       []string
	transcripts []string
	attentions  int
	joined      bool
	ended       bool
	closed      bool
}

func newFakeRelay() *fakeRelay { return &fakeRelay{inbox: make(chan relay.Event, 32)} }

func (f *fakeRelay) Inbox() <-chan relay.Event { return f.inbox }

func (f *fakeRelay) JoinRoom(room, name, identity, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = true
}

func (f *fakeRelay) SendOffer(target string, offer webrtc.SessionDescription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, target)
}

func (f *fakeRelay) SendAnswer(target string, answer webrtc.SessionDescription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, target)
}

func (f *fakeRelay) SendCandidate(target string, candidate webrtc.ICECandidateInit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, target)
}

func (f *fakeRelay) SendChat(room, sender, text, tstamp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, text)
}

func (f *fakeRelay) SendTranscript(room, speaker, text, timestamp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
}

func (f *fakeRelay) SendAttention(room, name string, attentive bool, confidence, probA, probI float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attentions++
}

func (f *fakeRelay) EndSession(room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = true
}

func (f *fakeRelay) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbox)
	}
}

func (f *fakeRelay) sentOffers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.offers...)
}

func (f *fakeRelay) sentAnswers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.answers...)
}

func (f *fakeRelay) push(ev relay.Event) { f.inbox <- ev }

// waitFor polls until cond holds or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %v", what)
}

func sdp(t webrtc.SDPType) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: t, SDP: "v=0 test"}
}

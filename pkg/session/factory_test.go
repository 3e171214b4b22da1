package session

import (
	"testing"

	"github.com/classmesh/classmesh/pkg/logger"
	"github.com/pion/webrtc/v3"
)

type harness struct {
	registry *Registry
	factory  *Factory
	router   *Router
	relay    *fakeRelay
	events   chan peerUpdate
	conns    []*fakeConn
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Default()
	h := &harness{
		registry: NewRegistry(log),
		relay:    newFakeRelay(),
		events:   make(chan peerUpdate, 16),
	}
	conns := func() (Conn, error) {
		c := newFakeConn()
		h.conns = append(h.conns, c)
		return c, nil
	}
	h.factory = NewFactory(h.registry, conns, h.relay, h.events,
		func() []webrtc.TrackLocal { return nil }, log)
	h.router = NewRouter(h.registry, h.factory, log)
	return h
}

func TestEnsureInitiatorSendsOffer(t *testing.T) {
	h := newHarness(t)
	p, err := h.factory.Ensure("alice", "Alice", Initiator, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Role() != Initiator {
		t.Errorf("role = %v, want initiator", p.Role())
	}
	if got := p.State(); got != StateAwaitingAnswer {
		t.Errorf("state = %v, want awaiting-answer", got)
	}
	if got := h.relay.sentOffers(); len(got) != 1 || got[0] != "alice" {
		t.Errorf("offers = %v, want [alice]", got)
	}
}

func TestEnsureReceiverAnswersOffer(t *testing.T) {
	h := newHarness(t)
	offer := sdp(webrtc.SDPTypeOffer)
	p, err := h.factory.Ensure("bob", "Bob", Receiver, &offer)
	if err != nil {
		t.Fatal(err)
	}
	if p.Role() != Receiver {
		t.Errorf("role = %v, want receiver", p.Role())
	}
	if got := p.State(); got != StateConnected {
		t.Errorf("state = %v, want connected", got)
	}
	if got := h.relay.sentAnswers(); len(got) != 1 || got[0] != "bob" {
		t.Errorf("answers = %v, want [bob]", got)
	}
}

func TestEnsureDuplicateInitiationIsNoop(t *testing.T) {
	h := newHarness(t)
	first, _ := h.factory.Ensure("alice", "Alice", Initiator, nil)
	second, err := h.factory.Ensure("alice", "Alice", Initiator, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("duplicate initiation created a new record")
	}
	if len(h.conns) != 1 {
		t.Errorf("connections = %d, want 1", len(h.conns))
	}
}

func TestEnsureOfferSupersedesLiveRecord(t *testing.T) {
	h := newHarness(t)
	first, _ := h.factory.Ensure("alice", "Alice", Initiator, nil)

	offer := sdp(webrtc.SDPTypeOffer)
	second, err := h.factory.Ensure("alice", "Alice", Initiator, &offer)
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Fatal("offer did not supersede the live record")
	}
	if first.State() != StateClosed || !h.conns[0].isClosed() {
		t.Error("superseded record was not destroyed")
	}
	if second.Role() != Receiver {
		t.Errorf("superseding role = %v, want receiver", second.Role())
	}
	if got, ok := h.registry.Find("alice"); !ok || got != second {
		t.Error("registry does not hold the superseding record")
	}
}

func TestEnsurePurgesTerminatedRecord(t *testing.T) {
	h := newHarness(t)
	first, _ := h.factory.Ensure("alice", "Alice", Initiator, nil)
	h.conns[0].setState(webrtc.PeerConnectionStateFailed)
	if !first.Terminated() {
		t.Fatal("record with failed connection should be terminated")
	}

	second, err := h.factory.Ensure("alice", "Alice", Initiator, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Error("terminated record was reused")
	}
	if first.State() != StateClosed {
		t.Error("terminated record was not closed on purge")
	}
}

func TestRegistryDestroyAll(t *testing.T) {
	h := newHarness(t)
	h.factory.Ensure("alice", "Alice", Initiator, nil)
	h.factory.Ensure("bob", "Bob", Initiator, nil)
	if h.registry.Len() != 2 {
		t.Fatalf("len = %d, want 2", h.registry.Len())
	}
	h.registry.DestroyAll()
	if h.registry.Len() != 0 {
		t.Errorf("len after destroy = %d, want 0", h.registry.Len())
	}
	for i, c := range h.conns {
		if !c.isClosed() {
			t.Errorf("connection %d left open", i)
		}
	}
}

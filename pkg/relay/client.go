package relay

import (
	"encoding/json"
	"errors"
	"net/url"
	"sync"

	"github.com/classmesh/classmesh/pkg/logger"
	"github.com/classmesh/classmesh/pkg/network/websocket"
	"github.com/pion/webrtc/v3"
)

var ErrClosed = errors.New("relay connection closed")

// Client talks to the signaling relay over a websocket.
// Inbound frames are validated into typed events and delivered in
// arrival order on Inbox; malformed frames are logged and dropped.
type Client struct {
	ws    *websocket.WS
	inbox chan Event
	stop  chan struct{}
	once  sync.Once
	log   *logger.Logger
}

// Connect dials the relay. The returned client is already listening.
func Connect(address string, log *logger.Logger) (*Client, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	ws, err := websocket.NewClient(*u)
	if err != nil {
		return nil, err
	}
	c := &Client{
		ws:    ws,
		inbox: make(chan Event, 64),
		stop:  make(chan struct{}),
		log:   log.Extend(log.With().Str("cid", ws.Id().Short())),
	}
	ws.OnMessage = c.handleMessage
	ws.Listen()
	go func() {
		<-ws.Done
		close(c.inbox)
	}()
	return c, nil
}

// Inbox delivers parsed relay events.
// The channel is closed when the connection goes away.
func (c *Client) Inbox() <-chan Event { return c.inbox }

func (c *Client) handleMessage(message []byte, err error) {
	if err != nil {
		// Reconnect policy belongs to the relay client's owner,
		// here the disconnect is only surfaced.
		c.push(Disconnected{Err: err})
		return
	}
	ev, err := parse(message)
	if err != nil {
		c.log.Warn().Err(err).Msg("drop relay frame")
		return
	}
	if ev == nil {
		c.log.Debug().Msg("skip unknown relay event")
		return
	}
	c.push(ev)
}

// push hands an event to the inbox. Once the client is closing the
// consumer is gone, so further events are dropped instead of blocking
// the reader pump and holding the whole teardown hostage.
func (c *Client) push(ev Event) {
	select {
	case c.inbox <- ev:
	case <-c.stop:
	}
}

func (c *Client) send(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		c.log.Error().Err(err).Msgf("encode %v", event)
		return
	}
	frame, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		c.log.Error().Err(err).Msgf("encode %v", event)
		return
	}
	c.ws.Write(frame)
}

// JoinRoom announces this participant to the relay.
func (c *Client) JoinRoom(room, name, identity, role string) {
	c.send(EvJoinRoom, map[string]string{
		"room": room, "name": name, "identity": identity, "role": role,
	})
}

func (c *Client) SendOffer(target string, offer webrtc.SessionDescription) {
	c.send(EvOffer, map[string]any{"target": target, "offer": offer})
}

func (c *Client) SendAnswer(target string, answer webrtc.SessionDescription) {
	c.send(EvAnswer, map[string]any{"target": target, "answer": answer})
}

func (c *Client) SendCandidate(target string, candidate webrtc.ICECandidateInit) {
	c.send(EvCandidateOut, map[string]any{"target": target, "candidate": candidate})
}

func (c *Client) SendChat(room, sender, text, tstamp string) {
	c.send(EvChat, map[string]string{"room": room, "sender": sender, "text": text, "time": tstamp})
}

func (c *Client) SendTranscript(room, speaker, text, timestamp string) {
	c.send(EvTranscript, map[string]string{
		"room": room, "speaker": speaker, "text": text, "timestamp": timestamp,
	})
}

func (c *Client) SendAttention(room, name string, attentive bool, confidence, probA, probI float64) {
	c.send(EvAttention, map[string]any{
		"room": room, "name": name, "is_attentive": attentive,
		"confidence": confidence, "prob_attentive": probA, "prob_inattentive": probI,
	})
}

// EndSession asks the relay to close the room for everyone.
func (c *Client) EndSession(room string) {
	c.send(EvEndSession, map[string]string{"room": room})
}

// Close tears the websocket down. Safe to call multiple times.
func (c *Client) Close() {
	c.once.Do(func() { close(c.stop) })
	c.ws.Close()
}

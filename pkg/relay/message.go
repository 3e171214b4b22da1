package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// Wire event names of the relay contract.
// Note: the candidate event is asymmetric on purpose, the relay
// accepts ice_candidate and emits ice-candidate. Do not unify.
const (
	EvJoinRoom     = "join_room"
	EvOffer        = "offer"
	EvAnswer       = "answer"
	EvCandidateOut = "ice_candidate"
	EvCandidateIn  = "ice-candidate"
	EvEndSession   = "end_session"
	EvAttention    = "attention_update"
	EvTranscript   = "transcript_update"
	EvChat         = "chat_message"

	EvExistingUsers  = "existing-users"
	EvUserJoined     = "user-joined"
	EvUserLeft       = "user-left"
	EvSessionEnded   = "session-ended"
	EvPeerAttention  = "student_attention"
	EvContextUpdated = "ai-context-updated"
)

var ErrMalformed = errors.New("malformed relay message")

// envelope is the framing of every relay message.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event is an inbound relay message parsed into its typed variant.
type Event interface{ event() }

// Roster carries the list of participants already in the room,
// sent to a joiner exactly once.
type Roster struct{ Users []Participant }

// Joined announces a new participant.
type Joined struct{ Participant }

// Left announces a departure.
type Left struct {
	ID string `json:"id"`
}

// Offer is a remote session proposal.
type Offer struct {
	From  string                    `json:"from"`
	Name  string                    `json:"name"`
	Offer webrtc.SessionDescription `json:"offer"`
}

// Answer is a remote reply to a local offer.
type Answer struct {
	From   string                    `json:"from"`
	Answer webrtc.SessionDescription `json:"answer"`
}

// Candidate is an incremental network path proposal.
type Candidate struct {
	From      string                  `json:"from"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// SessionEnded tells that the moderator has closed the room.
type SessionEnded struct{}

// Chat is a room-wide text message.
type Chat struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Time   string `json:"time"`
}

// PeerAttention is an attention status report of another participant.
type PeerAttention struct {
	ID              string  `json:"odId"`
	Name            string  `json:"name"`
	Attentive       bool    `json:"is_attentive"`
	ProbAttentive   float64 `json:"prob_attentive"`
	ProbInattentive float64 `json:"prob_inattentive"`
}

// Transcript is a finalized speech segment of another participant.
type Transcript struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	ID        string `json:"odId"`
	Timestamp string `json:"timestamp"`
}

// ContextUpdated is an assistant-context notification.
type ContextUpdated struct {
	Room       string `json:"room_code"`
	HasContext bool   `json:"has_context"`
	Message    string `json:"message"`
}

// Disconnected is a transport-level close, synthesized locally.
type Disconnected struct{ Err error }

func (Roster) event()         {}
func (Joined) event()         {}
func (Left) event()           {}
func (Offer) event()          {}
func (Answer) event()         {}
func (Candidate) event()      {}
func (SessionEnded) event()   {}
func (Chat) event()           {}
func (PeerAttention) event()  {}
func (Transcript) event()     {}
func (ContextUpdated) event() {}
func (Disconnected) event()   {}

// parse validates a raw relay frame and returns its typed variant.
// Unknown events return (nil, nil) and are skipped by the caller.
func parse(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.Event {
	case EvExistingUsers:
		var d struct {
			Users []Participant `json:"users"`
		}
		if err := unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		return Roster{Users: d.Users}, nil
	case EvUserJoined:
		var d Participant
		if err := unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		if d.ID == "" {
			return nil, fmt.Errorf("%w: user-joined without id", ErrMalformed)
		}
		return Joined{Participant: d}, nil
	case EvUserLeft:
		var d Left
		if err := unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		if d.ID == "" {
			return nil, fmt.Errorf("%w: user-left without id", ErrMalformed)
		}
		return d, nil
	case EvOffer:
		var d Offer
		if err := unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		if d.From == "" || d.Offer.SDP == "" {
			return nil, fmt.Errorf("%w: incomplete offer", ErrMalformed)
		}
		return d, nil
	case EvAnswer:
		var d Answer
		if err := unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		if d.From == "" || d.Answer.SDP == "" {
			return nil, fmt.Errorf("%w: incomplete answer", ErrMalformed)
		}
		return d, nil
	case EvCandidateIn:
		var d Candidate
		if err := unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		if d.From == "" || d.Candidate.Candidate == "" {
			return nil, fmt.Errorf("%w: incomplete candidate", ErrMalformed)
		}
		return d, nil
	case EvSessionEnded:
		return SessionEnded{}, nil
	case EvChat:
		var d Chat
		if err := unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case EvPeerAttention:
		var d PeerAttention
		if err := unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		if d.ID == "" {
			return nil, fmt.Errorf("%w: attention report without id", ErrMalformed)
		}
		return d, nil
	case EvTranscript:
		var d Transcript
		if err := unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case EvContextUpdated:
		var d ContextUpdated
		if err := unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, nil
}

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

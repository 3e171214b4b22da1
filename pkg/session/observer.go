package session

import (
	"time"

	"github.com/classmesh/classmesh/pkg/attention"
	"github.com/pion/webrtc/v3"
)

// Status of the local attention read, as last reported.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusAttentive
	StatusInattentive
)

func (s Status) String() string {
	switch s {
	case StatusAttentive:
		return "attentive"
	case StatusInattentive:
		return "inattentive"
	}
	return "unknown"
}

// RosterEntry is a participant visible in the room.
type RosterEntry struct {
	Id   string
	Name string
}

// Observer receives session callbacks. Every field is optional.
// Callbacks run on a dedicated dispatcher goroutine, not the session
// loop, so handlers may call back into the session (Leave included)
// without deadlocking.
type Observer struct {
	// OnPeerStream fires when a remote media track arrives.
	OnPeerStream func(id, name string, track *webrtc.TrackRemote)
	// OnPeerClosed fires once per destroyed record.
	OnPeerClosed func(id, name string)
	// OnRosterChange fires with the full roster after any change.
	OnRosterChange func(roster []RosterEntry)
	// OnChat delivers a room chat message.
	OnChat func(from, name, text string, at time.Time)
	// OnTranscript delivers a transcript line, local or remote.
	OnTranscript func(from, text string)
	// OnPeerAttention delivers another participant's attention report.
	OnPeerAttention func(id string, attentive bool, probAttentive, probInattentive float64)
	// OnAttentionStatus delivers the local classification result.
	OnAttentionStatus func(status Status, result attention.Result)
	// OnNotice delivers out-of-band room context updates.
	OnNotice func(text string)
	// OnEnded fires when the session terminates for any reason
	// other than a local Leave call.
	OnEnded func(reason string)
}

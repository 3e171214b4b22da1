package session

import "errors"

var (
	// ErrSessionActive is returned by Join when the session already
	// owns a relay connection.
	ErrSessionActive = errors.New("session is already active")

	// ErrRelayUnreachable aborts the join flow.
	ErrRelayUnreachable = errors.New("relay is unreachable")

	// ErrNotActive marks an operation that needs a live session.
	ErrNotActive = errors.New("session is not active")

	// ErrSessionEnded is returned by Join on a session that has
	// already run its course. Sessions are single use.
	ErrSessionEnded = errors.New("session has ended")

	// ErrSignalingState marks a message that arrived for an
	// incompatible negotiation state. Dropped, never fatal.
	ErrSignalingState = errors.New("incompatible negotiation state")

	// ErrClosedPeer marks an operation on a terminated record.
	ErrClosedPeer = errors.New("connection record is closed")

	// ErrNotModerator guards moderator-only operations.
	ErrNotModerator = errors.New("moderator role required")
)

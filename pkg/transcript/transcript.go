// Package transcript defines the contract for an external
// speech-to-text capability consumed as a producer of finalized text.
package transcript

import "time"

// Segment is a single finalized transcription of local speech.
type Segment struct {
	Text string
	At   time.Time
}

// Source produces a lazy, restartable sequence of finalized segments
// from local audio. Restart and internal error policy belong to the
// implementation; the session only starts and stops it.
type Source interface {
	// Start begins (or resumes) recognition.
	Start() error

	// Stop pauses recognition. The Segments channel stays open.
	Stop()

	// Segments delivers finalized text. Closed by Close only.
	Segments() <-chan Segment

	// Close releases the source for good.
	Close() error
}

package media

import (
	"errors"
	"testing"

	"github.com/classmesh/classmesh/pkg/config"
	"github.com/classmesh/classmesh/pkg/logger"
)

func TestAcquireDegradesToEmpty(t *testing.T) {
	log := logger.Default()
	for _, tc := range []struct {
		name string
		conf config.Media
	}{
		{"nothing configured", config.Media{}},
		{"missing video", config.Media{VideoFile: "/nonexistent/v.ivf"}},
		{"missing audio", config.Media{AudioFile: "/nonexistent/a.ogg"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Acquire(tc.conf, log)
			if !errors.Is(err, ErrAcquire) {
				t.Errorf("err = %v, want ErrAcquire", err)
			}
			if s == nil {
				t.Fatal("no source returned")
			}
			if !s.Empty() || len(s.Tracks()) != 0 {
				t.Error("degraded source must be trackless")
			}
			s.Release()
		})
	}
}

func TestMuteToggle(t *testing.T) {
	s := NewEmpty(logger.Default())
	if s.Muted() {
		t.Error("new source starts muted")
	}
	s.SetMuted(true)
	if !s.Muted() {
		t.Error("mute did not stick")
	}
	s.SetMuted(false)
	if s.Muted() {
		t.Error("unmute did not stick")
	}
}

func TestSnapshotBeforeFirstFrame(t *testing.T) {
	s := NewEmpty(logger.Default())
	if s.Snapshot() != nil {
		t.Error("snapshot before any frame must be nil")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	s := NewEmpty(logger.Default())
	s.Release()
	s.Release()
}

package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/classmesh/classmesh/pkg/config"
	"github.com/classmesh/classmesh/pkg/logger"
	cmos "github.com/classmesh/classmesh/pkg/os"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
)

var ErrAcquire = errors.New("local media acquisition failed")

const (
	videoFrameDuration = 33 * time.Millisecond
	audioPageDuration  = 20 * time.Millisecond
)

// Source owns the local audio/video stream. The same two tracks are
// shared read-only by every outgoing peer connection and the local
// preview; only the muted flag mutates shared state, and it is a
// single value seen by all consumers at once.
type Source struct {
	video *webrtc.TrackLocalStaticSample
	audio *webrtc.TrackLocalStaticSample

	muted  int32
	cancel context.CancelFunc
	pumps  sync.WaitGroup

	frameMu   sync.Mutex
	lastFrame []byte

	released sync.Once
	log      *logger.Logger
}

// Acquire opens the configured media files and starts feeding the tracks.
// On failure it returns an empty (trackless) source together with an
// ErrAcquire-wrapped error: the session still proceeds with the empty stream.
func Acquire(conf config.Media, log *logger.Logger) (*Source, error) {
	s := &Source{log: log}
	if conf.VideoFile == "" && conf.AudioFile == "" {
		return s, fmt.Errorf("%w: no media sources configured", ErrAcquire)
	}

	var err error
	if conf.VideoFile != "" {
		if !cmos.Exists(conf.VideoFile) {
			err = fmt.Errorf("%w: missing video file %v", ErrAcquire, conf.VideoFile)
		} else if s.video, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "classmesh-video",
		); err != nil {
			err = fmt.Errorf("%w: %v", ErrAcquire, err)
		}
	}
	if conf.AudioFile != "" && err == nil {
		if !cmos.Exists(conf.AudioFile) {
			err = fmt.Errorf("%w: missing audio file %v", ErrAcquire, conf.AudioFile)
		} else if s.audio, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "classmesh-audio",
		); err != nil {
			err = fmt.Errorf("%w: %v", ErrAcquire, err)
		}
	}
	if err != nil {
		s.video, s.audio = nil, nil
		return s, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.video != nil {
		s.pumps.Add(1)
		go s.pumpVideo(ctx, conf.VideoFile)
	}
	if s.audio != nil {
		s.pumps.Add(1)
		go s.pumpAudio(ctx, conf.AudioFile)
	}
	return s, nil
}

// NewEmpty returns a source with no tracks.
func NewEmpty(log *logger.Logger) *Source { return &Source{log: log} }

// Tracks lists the shareable local tracks, none for an empty stream.
func (s *Source) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if s.video != nil {
		tracks = append(tracks, s.video)
	}
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	return tracks
}

func (s *Source) Empty() bool { return s.video == nil && s.audio == nil }

// SetMuted flips the shared audio state. Every consumer of the track
// observes the change at once since there is a single underlying track.
func (s *Source) SetMuted(muted bool) {
	v := int32(0)
	if muted {
		v = 1
	}
	atomic.StoreInt32(&s.muted, v)
}

func (s *Source) Muted() bool { return atomic.LoadInt32(&s.muted) == 1 }

// Snapshot returns the most recent video frame, nil before the first one.
func (s *Source) Snapshot() []byte {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if s.lastFrame == nil {
		return nil
	}
	out := make([]byte, len(s.lastFrame))
	copy(out, s.lastFrame)
	return out
}

// Release stops the pumps. Idempotent.
func (s *Source) Release() {
	s.released.Do(func() {
		if s.cancel != nil {
			s.cancel()
			s.pumps.Wait()
		}
	})
}

// pumpVideo feeds IVF frames into the shared video track, looping the file.
func (s *Source) pumpVideo(ctx context.Context, path string) {
	defer s.pumps.Done()
	ticker := time.NewTicker(videoFrameDuration)
	defer ticker.Stop()
	for {
		file, err := os.Open(path)
		if err != nil {
			s.log.Error().Err(err).Msg("video source gone")
			return
		}
		ivf, _, err := ivfreader.NewWith(file)
		if err != nil {
			_ = file.Close()
			s.log.Error().Err(err).Msg("bad ivf source")
			return
		}
		for {
			frame, _, err := ivf.ParseNextFrame()
			if err != nil {
				break // wrap around at EOF
			}
			s.frameMu.Lock()
			s.lastFrame = frame
			s.frameMu.Unlock()
			if werr := s.video.WriteSample(media.Sample{Data: frame, Duration: videoFrameDuration}); werr != nil {
				s.log.Warn().Err(werr).Msg("video write")
			}
			select {
			case <-ctx.Done():
				_ = file.Close()
				return
			case <-ticker.C:
			}
		}
		_ = file.Close()
	}
}

// pumpAudio feeds Ogg pages into the shared audio track, looping the file.
// While muted nothing is written, which every connection sharing the
// track observes as silence.
func (s *Source) pumpAudio(ctx context.Context, path string) {
	defer s.pumps.Done()
	ticker := time.NewTicker(audioPageDuration)
	defer ticker.Stop()
	for {
		file, err := os.Open(path)
		if err != nil {
			s.log.Error().Err(err).Msg("audio source gone")
			return
		}
		ogg, _, err := oggreader.NewWith(file)
		if err != nil {
			_ = file.Close()
			s.log.Error().Err(err).Msg("bad ogg source")
			return
		}
		for {
			page, _, err := ogg.ParseNextPage()
			if err != nil {
				break // wrap around at EOF
			}
			if !s.Muted() {
				if werr := s.audio.WriteSample(media.Sample{Data: page, Duration: audioPageDuration}); werr != nil {
					s.log.Warn().Err(werr).Msg("audio write")
				}
			}
			select {
			case <-ctx.Done():
				_ = file.Close()
				return
			case <-ticker.C:
			}
		}
		_ = file.Close()
	}
}

package attention

import (
	"context"
	"time"
)

// FrameSource yields the most recent local video frame.
type FrameSource interface {
	Snapshot() []byte
}

// Sampler is a periodic scoring task explicitly bound to the session's
// active lifetime: started on entering Active and guaranteed cancelled
// on leaving it. Results are not retried on failure.
type Sampler struct {
	pipeline Pipeline
	frames   FrameSource
	interval time.Duration
	report   func(Result, error)

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSampler(p Pipeline, frames FrameSource, interval time.Duration, report func(Result, error)) *Sampler {
	return &Sampler{pipeline: p, frames: frames, interval: interval, report: report}
}

// Start launches the sampling loop.
func (s *Sampler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop cancels the task and waits for its completion.
// Safe to call multiple times and before Start.
func (s *Sampler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Sampler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := s.frames.Snapshot()
			if frame == nil {
				continue
			}
			res, err := s.pipeline.Submit(ctx, frame)
			if ctx.Err() != nil {
				return
			}
			s.report(res, err)
		}
	}
}

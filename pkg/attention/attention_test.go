package attention

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		frame, _ := io.ReadAll(file)
		if string(frame) != "jpegbytes" {
			t.Errorf("frame = %q", frame)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true,"classe":"atento","confianca":91.2,"prob_atento":91.2,"prob_desatento":8.8}`)
	}))
	defer srv.Close()

	res, err := NewHTTP(srv.URL).Submit(context.Background(), []byte("jpegbytes"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Class != "atento" || !res.Attentive() {
		t.Errorf("result = %+v", res)
	}
}

func TestSubmitServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewHTTP(srv.URL).Submit(context.Background(), []byte("x")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}

	srv.Close()
	if _, err := NewHTTP(srv.URL).Submit(context.Background(), []byte("x")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

type stubPipeline struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *stubPipeline) Submit(context.Context, []byte) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return Result{Success: true, ProbAttentive: 60, ProbInattentive: 40}, p.err
}

func (p *stubPipeline) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type stubFrames struct{ frame []byte }

func (f stubFrames) Snapshot() []byte { return f.frame }

func TestSamplerReportsPeriodically(t *testing.T) {
	p := &stubPipeline{}
	var mu sync.Mutex
	var got []Result
	s := NewSampler(p, stubFrames{frame: []byte("f")}, 10*time.Millisecond, func(r Result, err error) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("sampler produced no reports")
}

func TestSamplerSkipsWithoutFrame(t *testing.T) {
	p := &stubPipeline{}
	s := NewSampler(p, stubFrames{}, 5*time.Millisecond, func(Result, error) {
		t.Error("report without a frame")
	})
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	if p.count() != 0 {
		t.Errorf("pipeline calls = %d, want 0", p.count())
	}
}

func TestSamplerStopIdempotent(t *testing.T) {
	s := NewSampler(&stubPipeline{}, stubFrames{frame: []byte("f")}, time.Hour, func(Result, error) {})
	s.Stop() // before start
	s.Start()
	s.Stop()
	s.Stop()
}

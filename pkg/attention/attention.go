// Package attention submits local video frames to an external scoring
// service on a fixed cadence and reports the classification results.
package attention

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

var ErrUnavailable = errors.New("attention service unavailable")

// Result is the scoring service response. Field names follow the
// service's own wire format.
type Result struct {
	Success         bool               `json:"success"`
	Class           string             `json:"classe"`
	Confidence      float64            `json:"confianca"`
	ProbAttentive   float64            `json:"prob_atento"`
	ProbInattentive float64            `json:"prob_desatento"`
	Probabilities   map[string]float64 `json:"probabilidades"`
}

// Attentive compares the class probabilities, as percentages.
func (r Result) Attentive() bool { return r.ProbAttentive > r.ProbInattentive }

// Pipeline scores a single video frame.
type Pipeline interface {
	Submit(ctx context.Context, frame []byte) (Result, error)
}

// HTTPPipeline talks to the scoring service over HTTP multipart uploads.
type HTTPPipeline struct {
	endpoint string
	client   *http.Client
}

func NewHTTP(endpoint string) *HTTPPipeline {
	return &HTTPPipeline{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPPipeline) Submit(ctx context.Context, frame []byte) (Result, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return Result{}, err
	}
	if _, err = part.Write(frame); err != nil {
		return Result{}, err
	}
	if err = form.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: status %v", ErrUnavailable, resp.StatusCode)
	}

	var res Result
	if err = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res, nil
}

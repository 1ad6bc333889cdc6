package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultModelTimeout = 30 * time.Second

// ModelDetector calls an external entity recognition service over HTTP
type ModelDetector struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// ModelDetectorOption configures a ModelDetector
type ModelDetectorOption func(*ModelDetector)

// WithRateLimit caps outgoing requests per second (burst of one)
func WithRateLimit(requestsPerSecond float64) ModelDetectorOption {
	return func(m *ModelDetector) {
		m.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ModelDetectorOption {
	return func(m *ModelDetector) {
		m.client.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) ModelDetectorOption {
	return func(m *ModelDetector) {
		m.client = client
	}
}

func NewModelDetector(baseURL string, opts ...ModelDetectorOption) *ModelDetector {
	m := &ModelDetector{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultModelTimeout},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetName returns the name of this detector
func (m *ModelDetector) GetName() string {
	return DetectorNameModel
}

type modelRequest struct {
	Text string `json:"text"`
}

type modelEntity struct {
	Text       string   `json:"text"`
	Label      string   `json:"label"`
	StartPos   int      `json:"start_pos"`
	EndPos     int      `json:"end_pos"`
	Confidence *float64 `json:"confidence"`
}

type modelResponse struct {
	Entities []modelEntity `json:"entities"`
}

// Detect sends the text to {baseURL}/detect and converts the response to entities
func (m *ModelDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return DetectorOutput{}, fmt.Errorf("rate limiter: %w", err)
	}

	jsonData, err := json.Marshal(modelRequest{Text: input.Text})
	if err != nil {
		return DetectorOutput{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/detect", bytes.NewBuffer(jsonData))
	if err != nil {
		return DetectorOutput{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	response, err := m.client.Do(req)
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("model server request failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		// Drain a little of the body for connection reuse; it is not surfaced
		// because the server may echo the input text.
		_, _ = io.CopyN(io.Discard, response.Body, 4096)
		return DetectorOutput{}, fmt.Errorf("model server returned status %d", response.StatusCode)
	}

	entities, err := convertResponseToEntities(response.Body)
	if err != nil {
		return DetectorOutput{}, err
	}

	return DetectorOutput{
		Text:     input.Text,
		Entities: entities,
	}, nil
}

func convertResponseToEntities(body io.Reader) ([]Entity, error) {
	var parsed modelResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}

	entities := make([]Entity, 0, len(parsed.Entities))
	for _, e := range parsed.Entities {
		confidence := 1.0
		if e.Confidence != nil {
			confidence = *e.Confidence
		}
		entities = append(entities, Entity{
			Text:       e.Text,
			Label:      ParseEntityKind(e.Label),
			StartPos:   e.StartPos,
			EndPos:     e.EndPos,
			Confidence: confidence,
		})
	}
	return entities, nil
}

// Close implements the Detector interface
func (m *ModelDetector) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// Client calls an external inference service with encoded frames and
// returns the detections it reports. Calls run through a circuit breaker so
// a dead service stops costing a round trip per frame.
type Client struct {
	url     string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

var _ ports.Detector = (*Client)(nil)

// NewClient builds a detector client for the given inference endpoint.
func NewClient(url string, logger *zap.SugaredLogger) *Client {
	return &Client{
		url: url,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		}),
		logger: logger,
	}
}

// Detect posts one encoded frame and decodes the detection list.
func (c *Client) Detect(ctx context.Context, frame []byte) ([]domain.Detection, error) {
	var detections []domain.Detection

	err := c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(frame))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("inference service returned %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&detections)
	})
	if err != nil {
		return nil, err
	}
	return detections, nil
}

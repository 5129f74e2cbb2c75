package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/httputil"
	"github.com/kestrel-sense/driverwatch/internal/timeutil"
)

// ErrOffline reports that the network was flagged offline and the send was
// skipped without attempting delivery.
var ErrOffline = errors.New("network offline")

const (
	// DefaultAttempts is the total number of delivery attempts per send.
	DefaultAttempts = 3

	// DefaultBackoff is the wait before the first retry; it doubles on each
	// subsequent attempt.
	DefaultBackoff = 300 * time.Millisecond
)

// Client posts telemetry records to the collector endpoint. A send makes up
// to Attempts tries with exponential backoff; request cancellation aborts the
// remaining attempts.
type Client struct {
	HTTP     httputil.HTTPClient
	Clock    timeutil.Clock
	URL      string
	Attempts int
	Backoff  time.Duration

	// Offline reports whether the network is currently unavailable. When it
	// returns true, Send skips delivery entirely and returns ErrOffline. A
	// nil Offline means always online.
	Offline func() bool
}

// NewClient creates a telemetry client for the given endpoint URL. A nil
// httpClient gets a standard client with a 10s timeout; a nil clk gets the
// real clock.
func NewClient(httpClient httputil.HTTPClient, clk timeutil.Clock, url string) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second})
	}
	if clk == nil {
		clk = timeutil.RealClock{}
	}
	return &Client{
		HTTP:     httpClient,
		Clock:    clk,
		URL:      url,
		Attempts: DefaultAttempts,
		Backoff:  DefaultBackoff,
	}
}

// Send delivers one record. It returns nil on any 2xx response, ErrOffline
// when the offline hook reports no network, the context error when superseded
// mid-send, and the last delivery error once attempts are exhausted.
func (c *Client) Send(ctx context.Context, rec Record) error {
	if c.Offline != nil && c.Offline() {
		return ErrOffline
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding telemetry record: %w", err)
	}

	attempts := c.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	delay := c.Backoff
	if delay <= 0 {
		delay = DefaultBackoff
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			// A superseding save cancels ctx; the backoff must not hold the
			// worker for the remainder of the wait.
			select {
			case <-c.Clock.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("collector returned status %d", resp.StatusCode)
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

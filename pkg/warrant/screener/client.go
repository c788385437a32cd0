// Package screener implements warrant.Finder against an external screener
// HTTP API that ranks listed leveraged instruments by knock-out distance and
// turnover.
package screener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"rotor-api/pkg/broker"
	"rotor-api/pkg/warrant"
)

const (
	defaultHTTPTimeout      = 10 * time.Second
	defaultMaxRetries       = 3
	defaultRetryBackoffBase = 150 * time.Millisecond
)

// ErrBadPayload indicates the screener returned a row that failed validation.
var ErrBadPayload = errors.New("screener: invalid payload")

// Client queries the screener endpoint and adapts its rows into candidates.
type Client struct {
	baseURL    string
	underlying string
	httpClient *http.Client
	maxRetries int
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxRetries adjusts the retry budget.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// NewClient constructs a screener client for one underlying (e.g. the index
// code the controller monitors).
func NewClient(baseURL, underlying string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		underlying: underlying,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FindBestCandidate implements warrant.Finder. Rows inside the distance band
// are ranked by turnover descending; the top row wins. A clean empty screen
// returns (nil, nil).
func (c *Client) FindBestCandidate(ctx context.Context, direction broker.Direction, th warrant.Thresholds) (*warrant.Candidate, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("screener: unknown direction %q", direction)
	}
	resp, err := c.screen(ctx, direction, th)
	if err != nil {
		return nil, err
	}

	var best *warrant.Candidate
	for _, row := range resp.Items {
		cand, err := parseRow(row, direction)
		if err != nil {
			logx.Errorf("screener: skipping row %s: %v", row.Symbol, err)
			continue
		}
		if cand.DistancePct < th.MinDistancePct || cand.DistancePct > th.MaxDistancePct {
			continue
		}
		if cand.Turnover < th.MinTurnover {
			continue
		}
		if best == nil || cand.Turnover > best.Turnover {
			best = cand
		}
	}
	return best, nil
}

func (c *Client) screen(ctx context.Context, direction broker.Direction, th warrant.Thresholds) (*screenResponse, error) {
	q := url.Values{}
	q.Set("underlying", c.underlying)
	q.Set("direction", wireDirection(direction))
	q.Set("minDistance", strconv.FormatFloat(th.MinDistancePct, 'f', -1, 64))
	q.Set("maxDistance", strconv.FormatFloat(th.MaxDistancePct, 'f', -1, 64))
	q.Set("minTurnover", strconv.FormatFloat(th.MinTurnover, 'f', -1, 64))
	endpoint := fmt.Sprintf("%s/v1/warrants/screen?%s", c.baseURL, q.Encode())

	var lastErr error
	backoff := defaultRetryBackoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("screener: build request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("screener: read response: %w", readErr)
			} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				lastErr = fmt.Errorf("screener: http status %d: %s", resp.StatusCode, string(body))
			} else {
				var out screenResponse
				if err := json.Unmarshal(body, &out); err != nil {
					return nil, fmt.Errorf("screener: decode response: %w", err)
				}
				return &out, nil
			}
		}

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("screener: request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// parseRow is the trust boundary: every numeric field is parsed and validated
// before a candidate escapes this package.
func parseRow(row screenRow, want broker.Direction) (*warrant.Candidate, error) {
	if strings.TrimSpace(row.Symbol) == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrBadPayload)
	}
	if wireDirection(want) != strings.ToLower(strings.TrimSpace(row.Direction)) {
		return nil, fmt.Errorf("%w: direction %q does not match requested %q", ErrBadPayload, row.Direction, want)
	}
	callPrice, err := parsePositive(row.CallPrice, "callPrice")
	if err != nil {
		return nil, err
	}
	distance, err := parseFloat(row.DistancePct, "distancePct")
	if err != nil {
		return nil, err
	}
	turnover, err := parsePositive(row.Turnover, "turnover")
	if err != nil {
		return nil, err
	}
	if row.LotSize <= 0 {
		return nil, fmt.Errorf("%w: lot size %d", ErrBadPayload, row.LotSize)
	}
	return &warrant.Candidate{
		Symbol:      strings.TrimSpace(row.Symbol),
		CallPrice:   callPrice,
		DistancePct: distance,
		Turnover:    turnover,
		LotSize:     row.LotSize,
	}, nil
}

func parseFloat(raw, field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrBadPayload, field, raw)
	}
	return v, nil
}

func parsePositive(raw, field string) (float64, error) {
	v, err := parseFloat(raw, field)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %q", ErrBadPayload, field, raw)
	}
	return v, nil
}

func wireDirection(d broker.Direction) string {
	if d == broker.DirectionShort {
		return "bear"
	}
	return "bull"
}

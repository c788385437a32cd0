package screener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"rotor-api/pkg/broker"
	"rotor-api/pkg/warrant"
)

const screenBody = `{
  "underlying": "HSI",
  "asOf": 1741939200000,
  "items": [
    {"symbol": "61999", "direction": "bull", "callPrice": "18200", "distancePct": "5.2", "turnover": "8500000", "lotSize": 10000},
    {"symbol": "62888", "direction": "bull", "callPrice": "18500", "distancePct": "4.1", "turnover": "12500000", "lotSize": 10000},
    {"symbol": "63777", "direction": "bull", "callPrice": "19000", "distancePct": "1.9", "turnover": "99000000", "lotSize": 10000},
    {"symbol": "64666", "direction": "bull", "callPrice": "18100", "distancePct": "5.8", "turnover": "500000", "lotSize": 10000},
    {"symbol": "65555", "direction": "bull", "callPrice": "-1", "distancePct": "5.0", "turnover": "9000000", "lotSize": 10000}
  ]
}`

func newTestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/warrants/screen", r.URL.Path, "client should hit the screen endpoint")
		assert.Equal(t, "HSI", r.URL.Query().Get("underlying"), "underlying should be forwarded")
		assert.Equal(t, "bull", r.URL.Query().Get("direction"), "direction should be mapped to wire form")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestFindBestCandidate_RanksByTurnoverWithinBand(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, screenBody)
	defer srv.Close()

	c := NewClient(srv.URL, "HSI", WithHTTPClient(srv.Client()))
	cand, err := c.FindBestCandidate(context.Background(), broker.DirectionLong, warrant.Thresholds{
		MinDistancePct: 3, MaxDistancePct: 8, MinTurnover: 2_000_000,
	})
	assert.NoError(t, err, "screen should not error")
	assert.NotNil(t, cand, "a candidate should be found")
	// 63777 is outside the band, 64666 is too thin, 65555 fails validation;
	// 62888 beats 61999 on turnover.
	assert.Equal(t, "62888", cand.Symbol, "highest-turnover in-band candidate wins")
	assert.Equal(t, 18500.0, cand.CallPrice, "call price should be parsed")
	assert.Equal(t, int64(10000), cand.LotSize, "lot size should be carried over")
}

func TestFindBestCandidate_EmptyScreenIsNotAnError(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"underlying":"HSI","asOf":0,"items":[]}`)
	defer srv.Close()

	c := NewClient(srv.URL, "HSI", WithHTTPClient(srv.Client()))
	cand, err := c.FindBestCandidate(context.Background(), broker.DirectionLong, warrant.Thresholds{MinDistancePct: 3, MaxDistancePct: 8})
	assert.NoError(t, err, "empty screen is a clean miss")
	assert.Nil(t, cand, "no candidate expected")
}

func TestFindBestCandidate_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(screenBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "HSI", WithHTTPClient(srv.Client()), WithMaxRetries(3))
	cand, err := c.FindBestCandidate(context.Background(), broker.DirectionLong, warrant.Thresholds{
		MinDistancePct: 3, MaxDistancePct: 8, MinTurnover: 2_000_000,
	})
	assert.NoError(t, err, "client should retry past transient 5xx")
	assert.NotNil(t, cand, "candidate should be returned after retries")
	assert.Equal(t, int32(3), calls.Load(), "two failures then one success")
}

func TestFindBestCandidate_ExhaustedRetriesSurfaceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "HSI", WithHTTPClient(srv.Client()), WithMaxRetries(1))
	_, err := c.FindBestCandidate(context.Background(), broker.DirectionLong, warrant.Thresholds{})
	assert.Error(t, err, "persistent 5xx should surface as an error")
}

package screener

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"

	"rotor-api/pkg/broker"
	"rotor-api/pkg/warrant"
)

// This test uses go-vcr to record/replay a real screener call.
// It skips by default if cassette is absent and RECORD_CASSETTES != 1.
func TestClient_Screen_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "screener_screen.yaml")
	if _, err := os.Stat(cassette); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassette)
		}
		err := os.MkdirAll(filepath.Dir(cassette), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}
	baseURL := os.Getenv("SCREENER_BASE_URL")
	if baseURL == "" {
		t.Skip("SCREENER_BASE_URL is not set")
	}

	r, err := recorder.New(cassette)
	assert.NoError(t, err, "recorder.New should not error")
	assert.NotNil(t, r, "recorder should not be nil")
	defer func() { _ = r.Stop() }()

	client := NewClient(baseURL, "HSI", WithHTTPClient(&http.Client{Transport: r}))
	cand, err := client.FindBestCandidate(context.Background(), broker.DirectionLong, warrant.Thresholds{
		MinDistancePct: 3, MaxDistancePct: 8, MinTurnover: 2_000_000,
	})
	assert.NoError(t, err, "recorded screen should not error")
	if cand != nil {
		assert.NotEmpty(t, cand.Symbol, "candidate symbol should not be empty")
		assert.Greater(t, cand.CallPrice, 0.0, "call price should be positive")
	}
}

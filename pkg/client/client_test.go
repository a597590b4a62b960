package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/puddly/dte-insight-extractor/internal/testutil"
)

// newTestClient returns a client pointed at the mock server with recorded,
// non-blocking sleeps.
func newTestClient(mock *testutil.MockAPI, cfg Config) (*Client, *[]time.Duration) {
	cfg.BaseURL = mock.URL()
	if cfg.PacingDelay == 0 {
		cfg.PacingDelay = 2 * time.Second
	}
	if cfg.RetryDelayStep == 0 {
		cfg.RetryDelayStep = 60 * time.Second
	}

	c := New(cfg)

	slept := &[]time.Duration{}
	c.SetSleep(func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	})

	return c, slept
}

func TestDo_Success(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetResponse("/lookup/17", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"CustomerID": 42}`,
	})

	c, slept := newTestClient(mock, Config{})

	resp, err := c.PostJSON(context.Background(), "/lookup/17", map[string]string{"Username": "u"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"CustomerID": 42}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if len(*slept) != 1 || (*slept)[0] != 2*time.Second {
		t.Errorf("slept = %v, want one pacing delay of 2s", *slept)
	}
}

func TestDo_AuthRequiredWithoutToken(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	c, _ := newTestClient(mock, Config{})

	_, err := c.Get(context.Background(), "/usage/1/2", nil, true)
	if !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("request count = %d, want 0 (fail before sending)", mock.GetRequestCount())
	}
}

func TestDo_AuthHeaderInjection(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetResponse("/usage/1/2", testutil.MockResponse{StatusCode: http.StatusOK, Body: `[]`})

	c, _ := newTestClient(mock, Config{})
	c.SetToken("token-abc")

	if _, err := c.Get(context.Background(), "/usage/1/2", url.Values{"count": {"10"}}, true); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if mock.LastAuthHeader != "token-abc" {
		t.Errorf("Authorization header = %q, want %q", mock.LastAuthHeader, "token-abc")
	}
	if mock.LastQuery["count"] != "10" {
		t.Errorf("count query = %q, want 10", mock.LastQuery["count"])
	}
}

func TestDo_RetryOn502(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	// Two 502s, then success.
	failures := 2
	mock.SetHandler("/usage/1/2", func(w http.ResponseWriter, r *http.Request) {
		if failures > 0 {
			failures--
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"d": 100, "u": 1.5}]`))
	})

	c, slept := newTestClient(mock, Config{})
	c.SetToken("t")

	resp, err := c.Get(context.Background(), "/usage/1/2", nil, true)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}

	// N retries means exactly N+1 attempts.
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("request count = %d, want 3", got)
	}

	// Each retry's pacing delay is initial + 60s * retryIndex.
	want := []time.Duration{2 * time.Second, 62 * time.Second, 122 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %d times, want %d (%v)", len(*slept), len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("sleep[%d] = %v, want %v", i, (*slept)[i], d)
		}
	}
}

func TestDo_RetriesExhausted(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetResponse("/usage/1/2", testutil.MockResponse{StatusCode: http.StatusBadGateway})

	c, _ := newTestClient(mock, Config{MaxRetries: 3})
	c.SetToken("t")

	_, err := c.Get(context.Background(), "/usage/1/2", nil, true)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if !IsStatus(err, http.StatusBadGateway) {
		t.Errorf("err = %v, want wrapped 502 APIError", err)
	}
	if got := mock.GetRequestCount(); got != 4 {
		t.Errorf("request count = %d, want 4 (MaxRetries+1)", got)
	}
}

func TestDo_FatalStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "unauthorized", status: http.StatusUnauthorized},
		{name: "not_found", status: http.StatusNotFound},
		{name: "server_error", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAPI()
			defer mock.Close()

			mock.SetResponse("/login/17", testutil.MockResponse{
				StatusCode: tt.status,
				Body:       `{"error": "nope"}`,
			})

			c, _ := newTestClient(mock, Config{})

			_, err := c.PostJSON(context.Background(), "/login/17", nil)
			if err == nil {
				t.Fatal("expected error")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %T, want *APIError", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if string(apiErr.Body) != `{"error": "nope"}` {
				t.Errorf("Body = %q", apiErr.Body)
			}
			if got := mock.GetRequestCount(); got != 1 {
				t.Errorf("request count = %d, want 1 (no retry)", got)
			}
		})
	}
}

func TestDo_ContextCancelledDuringPacing(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	c := New(Config{BaseURL: mock.URL(), PacingDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "/usage/1/2", nil, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("request count = %d, want 0", mock.GetRequestCount())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.PacingDelay != 2*time.Second {
		t.Errorf("PacingDelay = %v, want 2s", cfg.PacingDelay)
	}
	if cfg.RetryDelayStep != 60*time.Second {
		t.Errorf("RetryDelayStep = %v, want 60s", cfg.RetryDelayStep)
	}
	if cfg.MaxRetries != 10 {
		t.Errorf("MaxRetries = %d, want 10", cfg.MaxRetries)
	}
}

package fimcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, srv *httptest.Server, timeout time.Duration) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:   srv.URL,
		SessionID: "mcp-session-test",
		Timeout:   timeout,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestCallSendsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mcp/stream" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get(SessionHeader); got != "mcp-session-test" {
			t.Errorf("session header = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type = %q", got)
		}

		var req struct {
			JSONRPC string `json:"jsonrpc"`
			ID      int    `json:"id"`
			Method  string `json:"method"`
			Params  struct {
				Name      string                 `json:"name"`
				Arguments map[string]interface{} `json:"arguments"`
			} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.JSONRPC != "2.0" || req.ID != 1 || req.Method != "tools/call" {
			t.Errorf("unexpected envelope %+v", req)
		}
		if req.Params.Name != "fetch_net_worth" || req.Params.Arguments == nil || len(req.Params.Arguments) != 0 {
			t.Errorf("unexpected params %+v", req.Params)
		}

		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"netWorthResponse":{"totalNetWorthValue":{"units":"5000"}}}}`)
	}))
	defer srv.Close()

	result, err := newTestClient(t, srv, time.Second).Call(context.Background(), "fetch_net_worth")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !strings.Contains(string(result), `"units":"5000"`) {
		t.Errorf("unexpected result %s", result)
	}
}

func TestCallClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "api error envelope",
			status: http.StatusOK,
			body:   `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"tool exploded"}}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("expected APIError, got %T %v", err, err)
				}
				if apiErr.Code != -32000 || apiErr.Message != "tool exploded" {
					t.Errorf("unexpected api error %+v", apiErr)
				}
			},
		},
		{
			name:   "error wins over login url",
			status: http.StatusOK,
			body:   `{"jsonrpc":"2.0","id":1,"error":"bad session","result":{"login_url":"/x"}}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Message != "bad session" {
					t.Fatalf("expected APIError with bare message, got %v", err)
				}
			},
		},
		{
			name:   "login required",
			status: http.StatusOK,
			body:   `{"jsonrpc":"2.0","id":1,"result":{"status":"login_required","login_url":"/mockWebPage?sessionId=abc"}}`,
			check: func(t *testing.T, err error) {
				var loginErr *LoginRequiredError
				if !errors.As(err, &loginErr) {
					t.Fatalf("expected LoginRequiredError, got %T %v", err, err)
				}
				if !strings.HasSuffix(loginErr.LoginURL, "/mockWebPage?sessionId=abc") || !strings.HasPrefix(loginErr.LoginURL, "http://") {
					t.Errorf("expected absolute login url, got %q", loginErr.LoginURL)
				}
			},
		},
		{
			name:   "neither result nor error",
			status: http.StatusOK,
			body:   `{"jsonrpc":"2.0","id":1}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("expected APIError, got %T %v", err, err)
				}
			},
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `not json`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Code != codeParseError {
					t.Fatalf("expected parse APIError, got %v", err)
				}
			},
		},
		{
			name:   "http 500",
			status: http.StatusInternalServerError,
			body:   `upstream failed`,
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				if !errors.As(err, &statusErr) {
					t.Fatalf("expected StatusError, got %T %v", err, err)
				}
				if statusErr.StatusCode != http.StatusInternalServerError || statusErr.Body != "upstream failed" {
					t.Errorf("unexpected status error %+v", statusErr)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			result, err := newTestClient(t, srv, time.Second).Call(context.Background(), "fetch_credit_report")
			if err == nil {
				t.Fatalf("expected error, got result %s", result)
			}
			tt.check(t, err)
		})
	}
}

func TestCallTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(t, srv, 50*time.Millisecond).Call(context.Background(), "fetch_epf_details")
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %T %v", err, err)
	}
	if timeoutErr.After != 50*time.Millisecond {
		t.Errorf("unexpected timeout duration %s", timeoutErr.After)
	}
}

func TestCallParentCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv, time.Second).Call(ctx, "fetch_epf_details")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %T %v", err, err)
	}
}

func TestCallNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: url, SessionID: "mcp-session-test", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Call(context.Background(), "fetch_net_worth")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T %v", err, err)
	}
}

func TestListTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "tools/list" {
			t.Errorf("unexpected method %q", req.Method)
		}
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"tools":[{"name":"fetch_net_worth","description":"Net worth"},{"name":"fetch_credit_report"}]}}`)
	}))
	defer srv.Close()

	tools, err := newTestClient(t, srv, time.Second).ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 2 || tools[0].Name != "fetch_net_worth" || tools[0].Description != "Net worth" {
		t.Errorf("unexpected tools %+v", tools)
	}
}

func TestLogin(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/login" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode login: %v", err)
			return
		}
		if req.SessionID != "mcp-session-test" || req.OTP != "demo" {
			t.Errorf("unexpected login body %+v", req)
		}
		if req.PhoneNumber == "0000000000" {
			_, _ = io.WriteString(w, `{"success":false,"message":"unknown phone"}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, time.Second)
	if err := c.Login(context.Background(), "2222222222", "demo"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	err := c.Login(context.Background(), "0000000000", "demo")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "unknown phone" {
		t.Fatalf("expected APIError, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 login calls, got %d", calls.Load())
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "not a url", SessionID: "x"}); err == nil {
		t.Error("expected error for invalid base url")
	}
	if _, err := NewClient(Config{BaseURL: "https://example.com"}); err == nil {
		t.Error("expected error for missing session id")
	}
}

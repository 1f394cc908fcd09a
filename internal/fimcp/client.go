// Package fimcp is the client for the remote financial data API. Each data
// source is a tool invoked through a JSON-RPC 2.0 envelope on the streaming
// endpoint, keyed by the installation's session id.
package fimcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds every request made by the client.
	DefaultTimeout = 15 * time.Second

	// SessionHeader carries the session id on streaming calls.
	SessionHeader = "Mcp-Session-Id"

	streamPath = "/mcp/stream"
	loginPath  = "/login"

	codeParseError  = -32700
	maxErrorBody    = 512
	maxResponseBody = 16 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client issues calls against the remote API. It is safe for concurrent use;
// the session id is fixed at construction.
type Client struct {
	baseURL   *url.URL
	sessionID string
	timeout   time.Duration
	http      *http.Client
	logger    *slog.Logger
}

// Tool describes one remote capability from tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type loginRequest struct {
	SessionID   string `json:"sessionId"`
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
}

type loginResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// NewClient creates a client for the API at cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}
	if cfg.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL:   base,
		sessionID: cfg.SessionID,
		timeout:   cfg.Timeout,
		http:      cfg.HTTPClient,
		logger:    cfg.Logger,
	}, nil
}

// SessionID returns the session id sent with every call.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Call invokes a tool and returns its result document. Failures are one of
// *NetworkError, *TimeoutError, *LoginRequiredError, *APIError or *StatusError.
func (c *Client) Call(ctx context.Context, tool string) (json.RawMessage, error) {
	start := time.Now()
	resp, err := c.rpc(ctx, tool, "tools/call", toolCallParams{
		Name:      tool,
		Arguments: map[string]interface{}{},
	})
	if err != nil {
		c.logger.Debug("Tool call failed", "tool", tool, "latency_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, err
	}

	result, err := c.classify(tool, resp)
	if err != nil {
		c.logger.Debug("Tool call rejected", "tool", tool, "error", err)
		return nil, err
	}
	c.logger.Debug("Tool call succeeded", "tool", tool, "latency_ms", time.Since(start).Milliseconds(), "bytes", len(result))
	return result, nil
}

// ListTools returns the tools the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	const op = "tools/list"
	resp, err := c.rpc(ctx, op, op, nil)
	if err != nil {
		return nil, err
	}
	result, err := c.classify(op, resp)
	if err != nil {
		return nil, err
	}

	var list struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, &APIError{Op: op, Code: codeParseError, Message: "malformed tools list: " + err.Error()}
	}
	return list.Tools, nil
}

// Login binds the session to a demo phone number on the server.
func (c *Client) Login(ctx context.Context, phoneNumber, otp string) error {
	const op = "login"
	body, err := json.Marshal(loginRequest{
		SessionID:   c.sessionID,
		PhoneNumber: phoneNumber,
		OTP:         otp,
	})
	if err != nil {
		return fmt.Errorf("marshal login request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint(loginPath), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, callCtx, op, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if err := checkStatus(op, httpResp); err != nil {
		return err
	}

	var lr loginResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxResponseBody)).Decode(&lr); err != nil && !errors.Is(err, io.EOF) {
		if callCtx.Err() != nil {
			return c.transportError(ctx, callCtx, op, err)
		}
		c.logger.Debug("Login response was not JSON", "error", err)
		return nil
	}
	if lr.Success != nil && !*lr.Success {
		msg := lr.Message
		if msg == "" {
			msg = "login failed"
		}
		return &APIError{Op: op, Message: msg}
	}
	return nil
}

func (c *Client) rpc(ctx context.Context, op, method string, params interface{}) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint(streamPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(SessionHeader, c.sessionID)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, callCtx, op, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if err := checkStatus(op, httpResp); err != nil {
		return nil, err
	}

	var resp rpcResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxResponseBody)).Decode(&resp); err != nil {
		if callCtx.Err() != nil {
			return nil, c.transportError(ctx, callCtx, op, err)
		}
		return nil, &APIError{Op: op, Code: codeParseError, Message: "malformed response: " + err.Error()}
	}
	return &resp, nil
}

// classify applies the response rules in order: error envelope, login
// redirect, data.
func (c *Client) classify(op string, resp *rpcResponse) (json.RawMessage, error) {
	if present(resp.Error) {
		code, msg := parseRPCError(resp.Error)
		return nil, &APIError{Op: op, Code: code, Message: msg}
	}
	if !present(resp.Result) {
		return nil, &APIError{Op: op, Message: "response carried neither result nor error"}
	}

	var redirect struct {
		LoginURL *string `json:"login_url"`
	}
	if err := json.Unmarshal(resp.Result, &redirect); err == nil && redirect.LoginURL != nil {
		loginURL := c.resolve(*redirect.LoginURL)
		c.logger.Info("Remote API requires login", "op", op, "login_url", loginURL)
		return nil, &LoginRequiredError{Tool: op, LoginURL: loginURL}
	}
	return resp.Result, nil
}

func (c *Client) transportError(parent, callCtx context.Context, op string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s: %w", op, parent.Err())
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Op: op, After: c.timeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, After: c.timeout}
	}
	return &NetworkError{Op: op, Err: err}
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

// resolve makes relative login URLs absolute against the base URL.
func (c *Client) resolve(raw string) string {
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return c.baseURL.ResolveReference(ref).String()
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// parseRPCError accepts {"code":..,"message":..} or a bare string.
func parseRPCError(raw json.RawMessage) (int, string) {
	var obj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message == "" {
			obj.Message = "API call failed"
		}
		return obj.Code, obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return 0, s
	}
	return 0, "API call failed"
}

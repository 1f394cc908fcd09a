package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultEndpoint is the Gemini generateContent endpoint.
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"

var errMissingText = errors.New("response has no candidate text")

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// RESTGenerator calls the generateContent endpoint over plain HTTPS with the
// credential in the key query parameter.
type RESTGenerator struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewRESTGenerator creates a generator for endpoint. An empty endpoint uses
// DefaultEndpoint.
func NewRESTGenerator(endpoint, apiKey string, httpClient *http.Client) *RESTGenerator {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RESTGenerator{endpoint: endpoint, apiKey: apiKey, http: httpClient}
}

// Generate sends prompt and returns the first candidate's text.
func (g *RESTGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.apiKey == "" {
		return "", &ServiceError{Backend: "rest", Err: ErrNoCredential}
	}

	u, err := url.Parse(g.endpoint)
	if err != nil {
		return "", &ServiceError{Backend: "rest", Err: fmt.Errorf("parse endpoint: %w", err)}
	}
	q := u.Query()
	q.Set("key", g.apiKey)
	u.RawQuery = q.Encode()

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", &ServiceError{Backend: "rest", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", &ServiceError{Backend: "rest", Err: redactURL(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &ServiceError{Backend: "rest", StatusCode: resp.StatusCode}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", &ServiceError{Backend: "rest", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 || gr.Candidates[0].Content.Parts[0].Text == "" {
		return "", &ServiceError{Backend: "rest", Err: errMissingText}
	}
	return gr.Candidates[0].Content.Parts[0].Text, nil
}

// redactURL drops the request URL, and with it the credential, from
// transport errors.
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

package analysis

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used by the SDK backend.
const DefaultModel = "gemini-2.0-flash"

// SDKGenerator generates text through the Google GenAI SDK.
type SDKGenerator struct {
	client *genai.Client
	model  string
}

// SDKConfig configures an SDKGenerator. BaseURL overrides the API host.
type SDKConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKGenerator creates a Gemini API client for cfg.Model.
func NewSDKGenerator(ctx context.Context, cfg SDKConfig) (*SDKGenerator, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoCredential
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &SDKGenerator{client: client, model: cfg.Model}, nil
}

// Generate sends prompt as a single user turn and returns the response text.
func (g *SDKGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", &ServiceError{Backend: "genai", Err: err}
	}
	text := resp.Text()
	if text == "" {
		return "", &ServiceError{Backend: "genai", Err: errMissingText}
	}
	return text, nil
}

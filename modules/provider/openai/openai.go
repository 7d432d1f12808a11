// Package openai adapts the OpenAI Chat Completions and Moderations APIs.
// Client implements provider.Provider; Moderator implements the guard
// chain's content classifier.
package openai

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	sdkopenai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// Compile-time interface guards.
var (
	_ provider.Provider      = (*Client)(nil)
	_ provider.HealthChecker = (*Client)(nil)
)

// Client talks to the Chat Completions API.
type Client struct {
	config Config
	logger *slog.Logger
	client *sdkopenai.Client
}

// New builds a client from cfg. It returns provider.ErrNoCredentials
// when no API key can be resolved.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	apiKey := cfg.resolveAPIKey(os.LookupEnv)
	if apiKey == "" {
		return nil, provider.ErrNoCredentials
	}

	client := newSDKClient(apiKey, cfg)
	return &Client{config: cfg, logger: logger, client: &client}, nil
}

func newSDKClient(apiKey string, cfg Config) sdkopenai.Client {
	// http.Client.Timeout would cut long-lived SSE streams, so the
	// timeout only bounds the wait for response headers.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.parsedTimeout()

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Transport: transport}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return sdkopenai.NewClient(opts...)
}

// ModelName implements provider.Provider.
func (c *Client) ModelName() string {
	return c.config.Model
}

// Complete sends a non-streaming chat completion request.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	out, err := c.client.Chat.Completions.New(ctx, buildParams(req, &c.config))
	if err != nil {
		return provider.CompletionResponse{}, mapError(err)
	}
	return convertCompletion(out), nil
}

// HealthCheck lists models, which verifies connectivity and credentials
// without spending tokens.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.client.Models.List(ctx)
	return mapError(err)
}

// Package anthropic adapts the Anthropic Messages API to provider.Provider
// for single-shot and streaming completions.
package anthropic

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// Interface guards.
var (
	_ provider.Provider      = (*Client)(nil)
	_ provider.HealthChecker = (*Client)(nil)
)

// Client implements provider.Provider and provider.HealthChecker using
// the Anthropic Messages API.
type Client struct {
	config Config
	client *sdkanthropic.Client
	logger *slog.Logger
}

// New builds a client from cfg. It returns provider.ErrNoCredentials
// when no API key can be resolved, so pools can skip the provider.
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

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Transport: transport}),
		// The pool owns retries.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := sdkanthropic.NewClient(opts...)
	return &Client{config: cfg, client: &client, logger: logger}, nil
}

// ModelName implements provider.Provider.
func (a *Client) ModelName() string {
	return a.config.Model
}

// Complete sends a synchronous completion request to the Messages API.
func (a *Client) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	params := convertRequest(req, &a.config)

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return provider.CompletionResponse{}, mapError(err)
	}
	resp := convertResponse(msg)
	a.logger.Debug("anthropic: completion",
		"model", a.config.Model,
		"system_blocks", len(params.System),
		"finish", resp.FinishReason,
		"tokens", resp.Usage.TotalTokens,
	)
	return resp, nil
}

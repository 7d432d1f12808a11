package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sort"

	sdkopenai "github.com/openai/openai-go/v3"

	"github.com/Inovico-app/inovy-sub002/internal/guard"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

var _ guard.Classifier = (*Moderator)(nil)

// Moderator classifies text with the Moderations endpoint.
type Moderator struct {
	model  string
	logger *slog.Logger
	client *sdkopenai.Client
}

// NewModerator builds a moderation classifier from the same settings as
// the chat client. Only the API key, base URL, timeout and moderation
// model are used.
func NewModerator(cfg Config, logger *slog.Logger) (*Moderator, error) {
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
	return &Moderator{model: cfg.ModerationModel, logger: logger, client: &client}, nil
}

// Classify implements guard.Classifier. Text is flagged when any result
// is flagged; Categories lists every flagged category name in order.
func (m *Moderator) Classify(ctx context.Context, text string) (guard.Classification, error) {
	resp, err := m.client.Moderations.New(ctx, sdkopenai.ModerationNewParams{
		Input: sdkopenai.ModerationNewParamsInputUnion{OfString: sdkopenai.String(text)},
		Model: sdkopenai.ModerationModel(m.model),
	})
	if err != nil {
		return guard.Classification{}, mapError(err)
	}

	var out guard.Classification
	seen := make(map[string]bool)
	for _, r := range resp.Results {
		if !r.Flagged {
			continue
		}
		out.Flagged = true
		for _, name := range flaggedCategories(r.Categories.RawJSON()) {
			if !seen[name] {
				seen[name] = true
				out.Categories = append(out.Categories, name)
			}
		}
	}
	sort.Strings(out.Categories)
	return out, nil
}

// flaggedCategories reads category flags from the raw result so new
// categories are reported without an SDK upgrade.
func flaggedCategories(raw string) []string {
	var flags map[string]bool
	if err := json.Unmarshal([]byte(raw), &flags); err != nil {
		return nil
	}
	var names []string
	for name, on := range flags {
		if on {
			names = append(names, name)
		}
	}
	return names
}

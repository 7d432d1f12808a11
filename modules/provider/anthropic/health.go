package anthropic

import (
	"context"
	"fmt"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
)

// HealthCheck looks up the configured model. It proves the key is accepted
// and the model is served without spending tokens. The pool logs the result
// but never gates recovery on it.
func (a *Client) HealthCheck(ctx context.Context) error {
	info, err := a.client.Models.Get(ctx, a.config.Model, sdkanthropic.ModelGetParams{})
	if err != nil {
		return mapError(err)
	}
	if info.ID == "" {
		return fmt.Errorf("anthropic: model lookup for %q returned no id", a.config.Model)
	}
	return nil
}

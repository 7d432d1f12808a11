package openai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdkopenai "github.com/openai/openai-go/v3"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// mapError converts an openai-go error into the provider error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *sdkopenai.Error
	if !errors.As(err, &apiErr) {
		return provider.ClassifyTransport(err)
	}

	msg := apiErr.Message
	if apiErr.StatusCode == http.StatusBadRequest &&
		(apiErr.Code == "context_length_exceeded" || strings.Contains(strings.ToLower(msg), "context length")) {
		return fmt.Errorf("%w: %s", provider.ErrContextLength, msg)
	}
	if msg == "" {
		msg = http.StatusText(apiErr.StatusCode)
	}
	return &provider.StatusError{
		Provider:   provider.OpenAI,
		StatusCode: apiErr.StatusCode,
		Message:    msg,
	}
}

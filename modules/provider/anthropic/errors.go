package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// mapError converts an Anthropic SDK error into the provider error
// taxonomy. HTTP failures become *provider.StatusError; transport
// failures are classified by provider.ClassifyTransport.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *sdkanthropic.Error
	if !errors.As(err, &apiErr) {
		return provider.ClassifyTransport(err)
	}

	body := parseErrorBody(apiErr.RawJSON())
	if apiErr.StatusCode == http.StatusBadRequest && isContextLengthError(body, apiErr.RawJSON()) {
		return fmt.Errorf("%w: %s", provider.ErrContextLength, body.Error.Message)
	}

	msg := body.Error.Message
	if msg == "" {
		msg = http.StatusText(apiErr.StatusCode)
	}
	return &provider.StatusError{
		Provider:   provider.Anthropic,
		StatusCode: apiErr.StatusCode,
		Message:    msg,
	}
}

// apiErrorBody is a minimal representation of the Anthropic error JSON
// used for structured detection of specific error types.
type apiErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseErrorBody(raw string) apiErrorBody {
	var body apiErrorBody
	_ = json.Unmarshal([]byte(raw), &body)
	return body
}

// isContextLengthError checks whether a 400 error is specifically about
// exceeding the model's context window. It first verifies the structured
// error type, then falls back to message substring matching.
func isContextLengthError(body apiErrorBody, raw string) bool {
	if body.Error.Type != "" {
		if body.Error.Type != "invalid_request_error" {
			return false
		}
		raw = body.Error.Message
	}
	return strings.Contains(raw, "context length") ||
		strings.Contains(raw, "too many tokens") ||
		strings.Contains(raw, "token limit") ||
		strings.Contains(raw, "prompt is too long")
}

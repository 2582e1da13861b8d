package llm

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// IsTransient reports whether err is worth one retry: timeouts, transport
// failures, rate limits, and provider 5xx. Auth failures, bad requests, and
// anything else are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var oaErr *openai.APIError
	if errors.As(err, &oaErr) {
		return oaErr.HTTPStatusCode == 429 || oaErr.HTTPStatusCode >= 500
	}

	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return anErr.StatusCode == 429 || anErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

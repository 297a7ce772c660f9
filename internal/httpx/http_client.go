package httpx

import (
	"net/http"
	"time"
)

const DefaultExternalHTTPTimeout = 30 * time.Second

// NewExternalClient returns the client used for calls to external APIs
// (Slack, Anthropic). A non-positive timeout uses the default.
func NewExternalClient(timeoutSeconds int) *http.Client {
	return &http.Client{Timeout: ExternalTimeout(timeoutSeconds)}
}

func ExternalTimeout(timeoutSeconds int) time.Duration {
	if timeoutSeconds <= 0 {
		return DefaultExternalHTTPTimeout
	}
	return time.Duration(timeoutSeconds) * time.Second
}

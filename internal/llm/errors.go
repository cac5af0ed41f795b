package llm

import "fmt"

// ConfigurationError reports a missing or invalid provider credential.
// It is raised before any network traffic.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// UpstreamError is a non-2xx response from the completion endpoint. Message
// is the provider's error.message when present, otherwise "API error: <status>".
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func newUpstreamError(status int, body []byte) *UpstreamError {
	msg := fmt.Sprintf("API error: %d", status)
	if parsed := parseErrorMessage(body); parsed != "" {
		msg = parsed
	}
	return &UpstreamError{StatusCode: status, Message: msg}
}

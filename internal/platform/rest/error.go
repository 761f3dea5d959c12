package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError represents a non-2xx HTTP response returned by the remote service.
type HTTPError struct {
	StatusCode int
	Body       []byte
	// Message is taken from the "message" (or "error") field of a JSON body.
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http error: status=%d", e.StatusCode)
}

// Temporary reports whether the error points at a server side failure.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= 500 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout
}

func newHTTPError(resp *http.Response, body []byte) *HTTPError {
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Body:       body,
		Message:    messageOf(body),
	}
}

func messageOf(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message *string `json:"message"`
		Error   *string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	switch {
	case payload.Message != nil && strings.TrimSpace(*payload.Message) != "":
		return *payload.Message
	case payload.Error != nil:
		return *payload.Error
	}
	return ""
}

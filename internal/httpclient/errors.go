package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
)

type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// ExtractMessage picks a human readable message out of an error body:
// error.message, message, error, reason, errors, then "HTTP <status>".
func ExtractMessage(status int, body []byte) string {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(body, &data); err == nil {
		if raw, ok := data["error"]; ok {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(raw, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
		}
		if msg := stringField(data, "message"); msg != "" {
			return msg
		}
		if msg := stringField(data, "error"); msg != "" {
			return msg
		}
		if msg := stringField(data, "reason"); msg != "" {
			return msg
		}
		if raw, ok := data["errors"]; ok && string(raw) != "null" {
			return string(raw)
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}

func stringField(data map[string]json.RawMessage, key string) string {
	raw, ok := data[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

package apperror

import (
	"encoding/json"
	"strings"
)

// NewHTTPError builds an HTTPError, lifting a human-readable message out of
// the usual error envelopes ({"detail": ...}, {"error": ...},
// {"message": ...}, {"non_field_errors": [...]}).
func NewHTTPError(method, path string, status int, body []byte) *HTTPError {
	return &HTTPError{
		Method:  method,
		Path:    path,
		Status:  status,
		Message: messageFromBody(body),
		Body:    body,
	}
}

func messageFromBody(body []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, k := range []string{"detail", "error", "message", "non_field_errors"} {
			raw, ok := obj[k]
			if !ok {
				continue
			}
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
			var list []string
			if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
				return strings.Join(list, "; ")
			}
		}
		return ""
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

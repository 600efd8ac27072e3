package repository

import (
	"bytes"
	"encoding/json"
)

// ExtractList pulls a list out of the backend's heterogeneous envelopes.
// Accepted shapes are a bare array, or an object with a "results", "data"
// or one of domainKeys array field. Anything else yields (nil, false); it
// never fails, so callers can degrade to an empty list.
func ExtractList[T any](raw []byte, domainKeys ...string) ([]T, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false
	}
	if raw[0] == '[' {
		return decodeList[T](raw)
	}
	if raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	keys := append([]string{"results", "data"}, domainKeys...)
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		v = bytes.TrimSpace(v)
		if len(v) == 0 || v[0] != '[' {
			continue
		}
		return decodeList[T](v)
	}
	return nil, false
}

func decodeList[T any](raw []byte) ([]T, bool) {
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	if out == nil {
		out = []T{}
	}
	return out, true
}

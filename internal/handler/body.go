package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxBodyBytes limits request bodies.
const MaxBodyBytes = 1 << 20

var (
	errEmptyBody = errors.New("request body is required")
	errNotObject = errors.New("request body must be a JSON object")
)

// DecodeObject reads the request body as a JSON object. Numbers are kept as
// json.Number and strings are stripped of control characters.
func DecodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	if r.Body == nil {
		return nil, errEmptyBody
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return nil, errors.New("invalid JSON in request body")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return sanitize(obj).(map[string]any), nil
}

// sanitize removes NUL and other control characters, except tab, newline and
// carriage return, from every string in v.
func sanitize(v any) any {
	switch t := v.(type) {
	case string:
		return strings.Map(func(r rune) rune {
			if r == '\t' || r == '\n' || r == '\r' {
				return r
			}
			if r < 0x20 || r == 0x7f {
				return -1
			}
			return r
		}, t)
	case map[string]any:
		for k, item := range t {
			t[k] = sanitize(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = sanitize(item)
		}
		return t
	default:
		return v
	}
}

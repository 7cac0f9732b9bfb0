package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// NetworkError means the request never produced an HTTP response.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network error: unable to connect to the API server"
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-2xx response. Message is the human readable text pulled
// out of the body or "HTTP <code>: <status text>" when the body had none.
type HTTPError struct {
	StatusCode int
	StatusText string
	Message    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// ContentTypeError is a 2xx response that did not carry JSON.
type ContentTypeError struct {
	ContentType string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("expected JSON response, got %q", e.ContentType)
}

const maxErrorTextLen = 200

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json")
}

// newHTTPError builds an HTTPError from resp, consuming its body.
func newHTTPError(resp *http.Response) *HTTPError {
	statusText := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
	if statusText == "" {
		statusText = http.StatusText(resp.StatusCode)
	}
	herr := &HTTPError{
		StatusCode: resp.StatusCode,
		StatusText: statusText,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, statusText),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(body) == 0 {
		return herr
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		text := strings.TrimSpace(string(body))
		if text != "" {
			herr.Message = herr.Message + ": " + truncate(text, maxErrorTextLen)
		}
		return herr
	}

	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return herr
	}
	if hasDetail(payload.Detail) {
		if msg := detailMessage(payload.Detail); msg != "" {
			herr.Message = msg
		}
	} else if payload.Message != "" {
		herr.Message = payload.Message
	}
	return herr
}

// hasDetail reports whether the detail field is present and not empty/null.
func hasDetail(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", `""`:
		return false
	}
	return true
}

// detailMessage extracts a message from a FastAPI style detail field, which is
// either a string or a list of strings or {msg|message} objects.
func detailMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return ""
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			parts = append(parts, str)
			continue
		}
		var obj struct {
			Msg     string `json:"msg"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			if obj.Msg != "" {
				parts = append(parts, obj.Msg)
				continue
			}
			if obj.Message != "" {
				parts = append(parts, obj.Message)
				continue
			}
		}
		parts = append(parts, string(item))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

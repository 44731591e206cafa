package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ErrorKind classifies an APIError.
type ErrorKind int

const (
	KindUnauthorized ErrorKind = iota + 1
	KindNetworkUnreachable
	KindClientError
	KindServerError
	KindUnexpectedShape
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNetworkUnreachable:
		return "network_unreachable"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	case KindUnexpectedShape:
		return "unexpected_shape"
	}
	return "unknown"
}

// Sentinels matched by APIError.Is.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrClientError        = errors.New("request rejected")
	ErrServerError        = errors.New("server error")
	ErrUnexpectedShape    = errors.New("unexpected response shape")
)

// APIError is returned by every Client method that talks to the API.
type APIError struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}

	if e.Kind == KindNetworkUnreachable {
		b.WriteString("no response received from server")
		if e.Err != nil {
			b.WriteString(": ")
			b.WriteString(e.Err.Error())
		}
		return b.String()
	}

	switch e.Kind {
	case KindUnauthorized:
		b.WriteString("not authorized")
	case KindClientError:
		b.WriteString("request rejected")
	case KindServerError:
		b.WriteString("server error")
	case KindUnexpectedShape:
		b.WriteString("unexpected response")
	default:
		b.WriteString("api request failed")
	}
	fmt.Fprintf(&b, " (server responded with HTTP %d)", e.StatusCode)

	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is lets callers match on the error kind with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrNetworkUnreachable:
		return e.Kind == KindNetworkUnreachable
	case ErrClientError:
		return e.Kind == KindClientError
	case ErrServerError:
		return e.Kind == KindServerError
	case ErrUnexpectedShape:
		return e.Kind == KindUnexpectedShape
	}
	return false
}

// ResponseReceived reports whether the server answered at all.
func (e *APIError) ResponseReceived() bool {
	return e.Kind != KindNetworkUnreachable
}

// Retryable reports whether repeating the same request may succeed.
func (e *APIError) Retryable() bool {
	return e.Kind == KindNetworkUnreachable || e.Kind == KindServerError
}

// IsRetryable reports whether err is an APIError worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindUnauthorized
	case code >= 500:
		return KindServerError
	default:
		return KindClientError
	}
}

const maxErrorMessage = 512

// extractMessage pulls a human readable message out of an error body. The
// control plane uses "detail"; other proxies use "error" or "message".
func extractMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"detail", "error", "message"} {
			raw, ok := payload[key]
			if !ok || string(raw) == "null" {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				if s = strings.TrimSpace(s); s != "" {
					return truncate(s)
				}
				continue
			}
			var compact bytes.Buffer
			if err := json.Compact(&compact, raw); err == nil {
				return truncate(compact.String())
			}
		}
	}
	return truncate(string(body))
}

func truncate(s string) string {
	if len(s) <= maxErrorMessage {
		return s
	}
	cut := maxErrorMessage
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed or incomplete requests. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized marks a missing or invalid bearer token. Never retried.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStorage marks a failed write to the jobs store. Always fatal for the
	// invocation that hit it.
	ErrStorage = errors.New("storage error")
)

// UpstreamKind tags the failure mode of a third-party call
type UpstreamKind int

const (
	UpstreamHTTP UpstreamKind = iota
	UpstreamRateLimited
	UpstreamNetwork
)

func (k UpstreamKind) String() string {
	switch k {
	case UpstreamRateLimited:
		return "rate_limited"
	case UpstreamNetwork:
		return "network"
	default:
		return "http"
	}
}

// UpstreamError is returned by every outbound client. Kind decides how the
// retry layer and the handlers treat it.
type UpstreamError struct {
	Kind              UpstreamKind
	Provider          string
	Status            int
	RetryAfterSeconds int
	Body              string
	Err               error
}

func (e *UpstreamError) Error() string {
	switch e.Kind {
	case UpstreamRateLimited:
		if e.RetryAfterSeconds > 0 {
			return fmt.Sprintf("%s rate limited: retry after %ds", e.Provider, e.RetryAfterSeconds)
		}
		return fmt.Sprintf("%s rate limited", e.Provider)
	case UpstreamNetwork:
		return fmt.Sprintf("%s unreachable: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s returned %d: %s", e.Provider, e.Status, truncate(e.Body, 300))
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// RateLimited builds the rate-limit variant.
func RateLimited(provider string, retryAfterSeconds int) *UpstreamError {
	return &UpstreamError{
		Kind:              UpstreamRateLimited,
		Provider:          provider,
		Status:            http.StatusTooManyRequests,
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// HTTPError builds the non-2xx variant.
func HTTPError(provider string, status int, body string) *UpstreamError {
	return &UpstreamError{Kind: UpstreamHTTP, Provider: provider, Status: status, Body: body}
}

// NetworkError builds the transport failure variant.
func NetworkError(provider string, err error) *UpstreamError {
	return &UpstreamError{Kind: UpstreamNetwork, Provider: provider, Err: err}
}

// AsUpstream unwraps err into an UpstreamError when it is one.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsRateLimited reports whether err is, or wraps, a rate-limit answer.
func IsRateLimited(err error) bool {
	ue, ok := AsUpstream(err)
	return ok && ue.Kind == UpstreamRateLimited
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

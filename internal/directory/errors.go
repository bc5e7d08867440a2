package directory

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a directory API failure so callers can decide between
// retrying, degrading a sub-collection, or treating the response as benign.
type ErrorKind string

const (
	KindRateLimited      ErrorKind = "rate_limited"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindNotFound         ErrorKind = "not_found"
	KindServerError      ErrorKind = "server_error"
	KindUnknown          ErrorKind = "unknown"
)

// ErrNoCredentials indicates the client was constructed without a tenant id,
// client id or secret.
var ErrNoCredentials = errors.New("directory: credentials are not configured")

// AuthError is returned when the token endpoint rejects the credentials.
// It is fatal to a sync pass.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("directory: authentication failed (status %d): %s", e.Status, e.Detail)
}

// APIError is any non-2xx directory response other than an optional-resource
// 404. Kind distinguishes throttling from missing consent: both can arrive
// as 403, but only one of them is worth retrying.
type APIError struct {
	Status int
	Kind   ErrorKind
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directory: api error (status %d, %s)", e.Status, e.Kind)
}

// classify maps an HTTP status and response body to an ErrorKind.
func classify(status int, body string) ErrorKind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 403:
		// Graph reports throttling on 403 for some workloads; the body
		// carries a TooManyRequests code in that case.
		lower := strings.ToLower(body)
		if strings.Contains(lower, "toomanyrequests") || strings.Contains(lower, "throttl") {
			return KindRateLimited
		}
		return KindPermissionDenied
	case status == 401:
		return KindPermissionDenied
	case status == 404:
		return KindNotFound
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

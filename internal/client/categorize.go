package client

import (
	"context"
	"errors"
)

// ErrorCategory is a stable label for error classification in metrics and logs.
type ErrorCategory string

// Error category constants used as metric labels (upstreamCallsTotal, refreshResultsTotal).
const (
	ErrorCategoryTimeout           ErrorCategory = "timeout"
	ErrorCategoryDNS               ErrorCategory = "dns"
	ErrorCategoryConnectionRefused ErrorCategory = "connection_refused"
	ErrorCategoryNetwork           ErrorCategory = "network"
	ErrorCategoryRateLimited       ErrorCategory = "rate_limited"
	ErrorCategoryUpstream          ErrorCategory = "upstream_status"
	ErrorCategoryNotFound          ErrorCategory = "not_found"
	ErrorCategoryConfig            ErrorCategory = "config"
	ErrorCategoryMapping           ErrorCategory = "mapping"
	ErrorCategoryCanceled          ErrorCategory = "canceled"
	ErrorCategoryUnknown           ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory. Exhausted retries are
// categorized by their last error.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	var ne *NetworkError
	if errors.As(err, &ne) {
		switch ne.Kind {
		case NetworkTimeout:
			return ErrorCategoryTimeout
		case NetworkDNS:
			return ErrorCategoryDNS
		case NetworkConnectionRefused:
			return ErrorCategoryConnectionRefused
		case NetworkHTTPStatus:
			if ne.StatusCode == 429 {
				return ErrorCategoryRateLimited
			}
			return ErrorCategoryUpstream
		default:
			return ErrorCategoryNetwork
		}
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return ErrorCategoryNotFound
	case errors.Is(err, ErrConfig):
		return ErrorCategoryConfig
	case errors.Is(err, ErrProviderMapping):
		return ErrorCategoryMapping
	case errors.Is(err, context.Canceled):
		return ErrorCategoryCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryTimeout
	case errors.Is(err, ErrNetwork):
		return ErrorCategoryNetwork
	}
	return ErrorCategoryUnknown
}

// UserMessage renders err for the status line.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.UserFriendlyMessage()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "Location not found."
	case errors.Is(err, ErrConfig):
		return "Weather provider is misconfigured: " + err.Error()
	case errors.Is(err, ErrProviderMapping):
		return "The weather service returned data we could not read."
	case errors.Is(err, ErrRetriesExhausted):
		return "Weather service unavailable."
	}
	return "Weather fetch failed: " + err.Error()
}

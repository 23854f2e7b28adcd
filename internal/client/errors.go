package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"time"
)

var (
	// ErrNetwork marks transient transport failures. These are retried.
	ErrNetwork = errors.New("network error")
	// ErrNotFound marks a resource the upstream says does not exist (unknown city, 404).
	ErrNotFound = errors.New("resource not found")
	// ErrConfig marks invalid configuration or credentials.
	ErrConfig = errors.New("configuration error")
	// ErrProviderMapping marks an upstream payload missing required fields or failing to parse.
	ErrProviderMapping = errors.New("provider mapping error")
	// ErrRetriesExhausted is returned when every attempt failed with a retryable error.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// NetworkErrorKind classifies transport failures for user-facing messages and metrics.
type NetworkErrorKind string

const (
	NetworkTimeout           NetworkErrorKind = "timeout"
	NetworkDNS               NetworkErrorKind = "dns"
	NetworkConnectionRefused NetworkErrorKind = "connection_refused"
	NetworkClientCreation    NetworkErrorKind = "client_creation"
	NetworkHTTPStatus        NetworkErrorKind = "http_status"
	NetworkOther             NetworkErrorKind = "other"
)

// NetworkError is a retryable transport failure.
type NetworkError struct {
	Kind       NetworkErrorKind
	URL        string
	Timeout    time.Duration
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	switch e.Kind {
	case NetworkTimeout:
		return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Timeout)
	case NetworkDNS:
		return fmt.Sprintf("dns lookup failed for %s: %v", e.URL, e.Err)
	case NetworkConnectionRefused:
		return fmt.Sprintf("connection refused by %s", e.URL)
	case NetworkClientCreation:
		return fmt.Sprintf("create http client: %v", e.Err)
	case NetworkHTTPStatus:
		return fmt.Sprintf("%s returned HTTP %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// UserFriendlyMessage is a short explanation suitable for the HUD.
func (e *NetworkError) UserFriendlyMessage() string {
	switch e.Kind {
	case NetworkTimeout:
		return "The weather service took too long to respond. Check your connection."
	case NetworkDNS:
		return "Could not resolve the weather service address. Are you online?"
	case NetworkConnectionRefused:
		return "The weather service refused the connection."
	case NetworkClientCreation:
		return "Could not initialise the network client."
	case NetworkHTTPStatus:
		if e.StatusCode == 429 {
			return "The weather service is rate limiting requests. Retrying later."
		}
		return "The weather service is having problems. Retrying later."
	default:
		return "Network error while fetching weather."
	}
}

// RetriesExhaustedError carries the attempt count and the last error seen.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("all %d attempts failed", e.Attempts)
	}
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

func (e *RetriesExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// ClassifyTransportError turns an error from http.Client.Do into a *NetworkError.
// Context cancellation by the caller is returned unchanged so callers can stop.
func ClassifyTransportError(err error, rawURL string, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	ne := &NetworkError{Kind: NetworkOther, URL: redactURL(rawURL), Timeout: timeout, Err: err}

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ne.Kind = NetworkTimeout
	case errors.As(err, &dnsErr):
		ne.Kind = NetworkDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		ne.Kind = NetworkConnectionRefused
	case errors.As(err, &netErr) && netErr.Timeout():
		ne.Kind = NetworkTimeout
	}
	return ne
}

// IsTerminal reports whether err must not be retried: not-found, configuration,
// mapping errors and caller cancellation.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConfig) ||
		errors.Is(err, ErrProviderMapping) ||
		errors.Is(err, context.Canceled)
}

// IsNotFound is the terminal predicate for lookups where only a definitive
// "no such resource" answer should stop retrying.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
}

// redactURL drops the query string from URLs shown in error text.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

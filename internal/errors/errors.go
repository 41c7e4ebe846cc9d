// Package errors provides the error taxonomy used by the SPA crawler.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Config represents an invalid crawl configuration.
	Config
	// Navigation represents a failed page navigation.
	Navigation
	// Timeout represents timeout errors.
	Timeout
	// ServerError represents 5xx document responses.
	ServerError
	// ClientError represents 4xx document responses.
	ClientError
	// Browser represents browser/CDP errors.
	Browser
	// Login represents a login flow that could not be confirmed.
	Login
	// Mirror represents asset interception and write errors.
	Mirror
	// Discovery represents URL discovery failures.
	Discovery
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Config:
		return "config"
	case Navigation:
		return "navigation"
	case Timeout:
		return "timeout"
	case ServerError:
		return "server_error"
	case ClientError:
		return "client_error"
	case Browser:
		return "browser"
	case Login:
		return "login"
	case Mirror:
		return "mirror"
	case Discovery:
		return "discovery"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsRetryable returns whether a request failing with this type may be retried.
// Anything not known to be permanent is retried.
func (t ErrorType) IsRetryable() bool {
	switch t {
	case Config, ClientError, Login, Cancelled:
		return false
	default:
		return true
	}
}

// CrawlError represents a categorized crawl error.
type CrawlError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
	Retryable  bool
}

// Error implements the error interface.
func (e *CrawlError) Error() string {
	var b strings.Builder
	b.WriteString(e.Type.String())
	b.WriteString(" error")
	if e.Operation != "" {
		b.WriteString(" during ")
		b.WriteString(e.Operation)
	}
	if e.URL != "" {
		b.WriteString(" on ")
		b.WriteString(e.URL)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *CrawlError) Unwrap() error {
	return e.Cause
}

// Is matches another CrawlError of the same type.
func (e *CrawlError) Is(target error) bool {
	t, ok := target.(*CrawlError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewCrawlError creates a new CrawlError.
func NewCrawlError(errType ErrorType, url, operation, message string, cause error) *CrawlError {
	return &CrawlError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: errType.IsRetryable(),
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(format string, args ...interface{}) *CrawlError {
	return NewCrawlError(Config, "", "validate", fmt.Sprintf(format, args...), nil)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Timeout, url, operation, "operation timed out", cause)
}

// NewNavigationError creates a navigation error.
func NewNavigationError(url string, cause error) *CrawlError {
	return NewCrawlError(Navigation, url, "navigate", "navigation failed", cause)
}

// NewBrowserError creates a browser error.
func NewBrowserError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Browser, url, operation, "browser operation failed", cause)
}

// NewLoginError creates a login error. Login failures are never retried.
func NewLoginError(url, message string, cause error) *CrawlError {
	return NewCrawlError(Login, url, "login", message, cause)
}

// NewMirrorError creates an asset mirror error.
func NewMirrorError(url, operation string, cause error) *CrawlError {
	return NewCrawlError(Mirror, url, operation, "asset mirror failed", cause)
}

// NewDiscoveryError creates a discovery error.
func NewDiscoveryError(url string, cause error) *CrawlError {
	return NewCrawlError(Discovery, url, "discover", "url discovery failed", cause)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *CrawlError {
	return NewCrawlError(Cancelled, url, operation, "operation cancelled", context.Canceled)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url string) *CrawlError {
	if err == nil {
		return nil
	}

	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(url, "request")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "request", err)
	}

	return NewCrawlError(Unknown, url, "request", err.Error(), err)
}

// CategorizeHTTPStatus turns a document status into an error, or nil when the
// status is a success or explicitly tolerated.
func CategorizeHTTPStatus(statusCode int, url string, ignored []int) *CrawlError {
	if statusCode < 400 {
		return nil
	}
	for _, code := range ignored {
		if code == statusCode {
			return nil
		}
	}

	var err *CrawlError
	if statusCode >= 500 {
		err = NewCrawlError(ServerError, url, "navigate", fmt.Sprintf("server returned %d", statusCode), nil)
	} else {
		err = NewCrawlError(ClientError, url, "navigate", fmt.Sprintf("client error %d", statusCode), nil)
	}
	err.StatusCode = statusCode
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Retryable
	}

	return !errors.Is(err, context.Canceled)
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return GetErrorType(err) == Config
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.StatusCode
	}
	return 0
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Type
	}
	return Unknown
}

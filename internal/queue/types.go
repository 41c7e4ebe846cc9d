// Package queue holds the crawl frontier: pending requests awaiting a worker.
package queue

import "errors"

// LabelLogin marks the one-shot login request.
const LabelLogin = "login"

var (
	// ErrDrained is returned by Next once nothing is pending or in flight.
	ErrDrained = errors.New("frontier drained")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("frontier closed")
)

// Request is a single crawl target.
type Request struct {
	URL       string
	Label     string // LabelLogin or empty for an ordinary page
	UniqueKey string // canonical URL; defaults to URL when empty

	seq uint64
}

// IsLogin reports whether the request is the login request.
func (r *Request) IsLogin() bool {
	return r.Label == LabelLogin
}

// Key returns the dedup key for the request.
func (r *Request) Key() string {
	if r.UniqueKey != "" {
		return r.UniqueKey
	}
	return r.URL
}

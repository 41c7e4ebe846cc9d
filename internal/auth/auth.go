// Package auth provides the scripted form login that runs before a crawl.
package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// Mask replaces a secret for display.
const Mask = "***"

// Credentials holds the form login identity.
type Credentials struct {
	Login    string
	Password string
}

// String masks both fields.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Login: %s, Password: %s}", MaskValue(c.Login), MaskValue(c.Password))
}

// MaskValue returns Mask for a non-empty secret and "" otherwise.
func MaskValue(s string) string {
	if s == "" {
		return ""
	}
	return Mask
}

// Outcome reports how a login run ended.
type Outcome int

const (
	// OutcomeLoggedIn means the form was submitted and the page left the login path.
	OutcomeLoggedIn Outcome = iota
	// OutcomeAlreadyAuthenticated means the login page redirected away on its own.
	OutcomeAlreadyAuthenticated
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeLoggedIn:
		return "logged_in"
	case OutcomeAlreadyAuthenticated:
		return "already_authenticated"
	default:
		return "unknown"
	}
}

// OnLoginPath reports whether rawURL's path starts with loginPath.
// Unparseable URLs are treated as not on the login path.
func OnLoginPath(rawURL, loginPath string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, loginPath)
}

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/PentesterFlow/spa-crawler/internal/browser"
	"github.com/PentesterFlow/spa-crawler/internal/errors"
	"github.com/PentesterFlow/spa-crawler/internal/logger"
)

// Config describes the login form and its timing.
type Config struct {
	// HomeURL is enqueued once the session is authenticated.
	HomeURL          string
	LoginPath        string
	Credentials      Credentials
	LoginSelector    string
	PasswordSelector string
	TypingDelay      time.Duration
	Stable           browser.StableTimeouts
	RedirectTimeout  time.Duration
	// ActionTimeout bounds locating and typing into each field.
	ActionTimeout time.Duration
}

// DefaultActionTimeout applies when Config.ActionTimeout is zero.
const DefaultActionTimeout = 30 * time.Second

// FormLogin fills and submits a login form in a live page.
type FormLogin struct {
	config Config
	log    *logger.Logger
}

// NewFormLogin creates a form login flow.
func NewFormLogin(config Config, log *logger.Logger) *FormLogin {
	if log == nil {
		log = logger.Nop()
	}
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = DefaultActionTimeout
	}
	return &FormLogin{
		config: config,
		log:    log.WithComponent("auth"),
	}
}

// Run performs the login on page, which must already be navigated to the
// login URL. On success the home URL is passed to enqueue. A page that never
// leaves the login path yields a non-retryable Login error.
func (f *FormLogin) Run(ctx context.Context, page browser.Page, enqueue func([]string)) (Outcome, error) {
	browser.WaitForStable(ctx, page, f.config.Stable)

	if !OnLoginPath(page.URL(), f.config.LoginPath) {
		f.log.Infof("[login] already authenticated at %s", page.URL())
		enqueue([]string{f.config.HomeURL})
		return OutcomeAlreadyAuthenticated, nil
	}

	if err := f.fill(ctx, page, f.config.LoginSelector, f.config.Credentials.Login, false); err != nil {
		return OutcomeLoggedIn, errors.NewLoginError(page.URL(), "could not fill login field", err)
	}
	if err := f.fill(ctx, page, f.config.PasswordSelector, f.config.Credentials.Password, true); err != nil {
		return OutcomeLoggedIn, errors.NewLoginError(page.URL(), "could not fill password field", err)
	}

	leftLogin := func(u string) bool { return !OnLoginPath(u, f.config.LoginPath) }
	if err := page.WaitURL(ctx, leftLogin, f.config.RedirectTimeout); err != nil {
		msg := fmt.Sprintf("still on %s after %s", f.config.LoginPath, f.config.RedirectTimeout)
		return OutcomeLoggedIn, errors.NewLoginError(page.URL(), msg, err)
	}

	f.log.Infof("[login] authenticated, now at %s", page.URL())
	enqueue([]string{f.config.HomeURL})
	return OutcomeLoggedIn, nil
}

// fill clicks the first element matching selector and types value into it.
func (f *FormLogin) fill(ctx context.Context, page browser.Page, selector, value string, submit bool) error {
	ctx, cancel := context.WithTimeout(ctx, f.config.ActionTimeout)
	defer cancel()

	el, err := page.Locate(ctx, selector)
	if err != nil {
		return fmt.Errorf("locate %s: %w", selector, err)
	}
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	if err := el.Type(ctx, value, f.config.TypingDelay); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	if submit {
		if err := el.Press(ctx, browser.KeyEnter); err != nil {
			return fmt.Errorf("submit %s: %w", selector, err)
		}
	}
	return nil
}

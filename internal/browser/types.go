package browser

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/ysmood/gson"
)

// ErrDownloadStarted reports that a navigation turned into a file download.
var ErrDownloadStarted = errors.New("download is starting")

// Resource types reported by Exchange.ResourceType.
const (
	ResourceDocument   = "document"
	ResourceScript     = "script"
	ResourceStylesheet = "stylesheet"
	ResourceImage      = "image"
	ResourceFetch      = "fetch"
	ResourceXHR        = "xhr"
)

// Key is a keyboard key understood by Page.Press and Element.Press.
type Key string

const (
	KeyEnter  Key = "Enter"
	KeyEscape Key = "Escape"
)

// Browser opens isolated pages.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one browsing context driven by the crawler.
type Page interface {
	// URL returns the current page URL.
	URL() string
	Navigate(ctx context.Context, url string) error
	// StatusCode returns the HTTP status of the main document, or 0 if unknown.
	StatusCode(ctx context.Context) int

	WaitDOMContentLoaded(ctx context.Context, timeout time.Duration) error
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error
	// WaitURL blocks until pred holds for the page URL or timeout elapses.
	WaitURL(ctx context.Context, pred func(string) bool, timeout time.Duration) error

	Eval(ctx context.Context, js string) (gson.JSON, error)
	HTML(ctx context.Context) (string, error)

	// Locate returns the first element matching selector. A ":visible"
	// suffix restricts the match to visible elements.
	Locate(ctx context.Context, selector string) (Element, error)
	Press(ctx context.Context, key Key) error
	ClickAt(ctx context.Context, x, y float64) error
	InfiniteScroll(ctx context.Context, timeout time.Duration) error

	// Route installs handler for every network request of the page.
	Route(handler func(Exchange)) error
	// OnDownload registers fn for downloads started by the page.
	OnDownload(fn func(url string))

	Close() error
}

// Element is a located DOM element.
type Element interface {
	Click(ctx context.Context) error
	// Type enters text one character at a time, pausing delay between characters.
	Type(ctx context.Context, text string, delay time.Duration) error
	Press(ctx context.Context, key Key) error
}

// Exchange is one intercepted network request. Exactly one of Continue or
// Fulfill decides what the page receives.
type Exchange interface {
	URL() *url.URL
	ResourceType() string
	// Continue sends the request to the network unmodified.
	Continue() error
	// Fetch performs the request out of band and returns the real response.
	Fetch(timeout time.Duration) (*Response, error)
	// Fulfill serves resp to the page.
	Fulfill(resp *Response) error
}

// Response is a fetched network response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// ContentType returns the Content-Type header value.
func (r *Response) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

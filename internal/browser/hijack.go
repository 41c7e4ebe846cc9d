package browser

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	crawlhttp "github.com/PentesterFlow/spa-crawler/internal/http"
)

// rodExchange adapts a rod hijack to Exchange. rod sends the continue or
// fulfill command after the route handler returns.
type rodExchange struct {
	hijack *rod.Hijack
	page   *rod.Page
	fetch  *crawlhttp.FetchClient
}

func (x *rodExchange) URL() *url.URL {
	return x.hijack.Request.URL()
}

func (x *rodExchange) ResourceType() string {
	return strings.ToLower(string(x.hijack.Request.Type()))
}

func (x *rodExchange) Continue() error {
	x.hijack.ContinueRequest(&proto.FetchContinueRequest{})
	return nil
}

func (x *rodExchange) Fetch(timeout time.Duration) (*Response, error) {
	req := x.hijack.Request.Req()
	if req.Header.Get("Cookie") == "" {
		if header := x.cookieHeader(req.URL.String()); header != "" {
			req.Header.Set("Cookie", header)
		}
	}

	if timeout <= 0 {
		timeout = x.fetch.Timeout()
	}
	if err := x.hijack.LoadResponse(x.fetch.WithTimeout(timeout), true); err != nil {
		return nil, err
	}

	payload := x.hijack.Response.Payload()
	header := make(http.Header, len(payload.ResponseHeaders))
	for _, h := range payload.ResponseHeaders {
		header.Add(h.Name, h.Value)
	}

	return &Response{
		Status: payload.ResponseCode,
		Header: header,
		Body:   payload.Body,
	}, nil
}

func (x *rodExchange) Fulfill(resp *Response) error {
	payload := x.hijack.Response.Payload()
	payload.ResponseCode = resp.Status

	headers := make([]*proto.FetchHeaderEntry, 0, len(resp.Header))
	for name, values := range resp.Header {
		for _, v := range values {
			headers = append(headers, &proto.FetchHeaderEntry{Name: name, Value: v})
		}
	}
	payload.ResponseHeaders = headers
	payload.Body = resp.Body
	return nil
}

// cookieHeader reads the browser's cookies for target. Intercepted requests
// do not carry them.
func (x *rodExchange) cookieHeader(target string) string {
	cookies, err := x.page.Cookies([]string{target})
	if err != nil || len(cookies) == 0 {
		return ""
	}

	hc := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc = append(hc, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return crawlhttp.CookieHeader(hc)
}

// Package httpclient provides the outbound HTTP client used for job
// dispatch. Every request carries a bounded timeout so a hung collaborator
// service cannot pin scheduler resources indefinitely.
package httpclient

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/feedline/scheduler/errors"
)

// Client wraps http.Client with scheme validation and a bounded redirect
// policy suitable for service-to-service dispatch.
type Client struct {
	*http.Client
	allowedSchemes []string
	maxRedirects   int
}

// New creates a dispatch HTTP client with the given request timeout.
func New(timeout time.Duration) *Client {
	client := &Client{
		Client: &http.Client{
			Timeout: timeout,
		},
		allowedSchemes: []string{"http", "https"},
		maxRedirects:   5,
	}

	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= client.maxRedirects {
			return errors.Newf("stopped after %d redirects", client.maxRedirects)
		}
		if err := client.ValidateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	client.Transport = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return client
}

// ValidateURL checks that a URL is usable for dispatch: absolute, with an
// allowed scheme and a host.
func (c *Client) ValidateURL(u *url.URL) error {
	if u == nil {
		return errors.New("nil URL")
	}
	if !u.IsAbs() {
		return errors.Newf("URL must be absolute: %s", u)
	}

	allowed := false
	for _, scheme := range c.allowedSchemes {
		if u.Scheme == scheme {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.Newf("scheme %q not allowed", u.Scheme)
	}

	if u.Host == "" {
		return errors.Newf("URL missing host: %s", u)
	}

	return nil
}

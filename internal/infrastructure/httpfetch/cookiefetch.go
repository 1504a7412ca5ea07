// Package httpfetch provides the cookie-capturing HTTPS fetch that
// precedes the vendor WebSocket handshake.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const loginPageURL = "https://app.eviqo.io/dashboard/login"

const defaultTimeout = 10 * time.Second

// errNoCookies is returned when the login page responds without any
// Set-Cookie headers, which would otherwise produce an empty,
// useless Cookie value on the WebSocket handshake.
var errNoCookies = errors.New("httpfetch: login page returned no Set-Cookie headers")

// Client fetches the vendor login page and concatenates every
// Set-Cookie value it receives into a single Cookie header.
type Client struct {
	httpClient *http.Client
}

// New returns a Client using a fresh http.Client with the given
// request timeout. A zero timeout uses defaultTimeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// FetchCookie issues GET against the vendor login page and returns the
// concatenated Set-Cookie values, formatted as a single Cookie header
// value (semicolon-separated name=value pairs).
func (c *Client) FetchCookie(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginPageURL, nil)
	if err != nil {
		return "", fmt.Errorf("httpfetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("httpfetch: login page request: %w", err)
	}
	defer resp.Body.Close()

	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return "", errNoCookies
	}

	pairs := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		pairs = append(pairs, ck.Name+"="+ck.Value)
	}
	return strings.Join(pairs, "; "), nil
}

// browserUserAgent is sent on the cookie fetch so the vendor's
// front-end doesn't reject the request as a bot.
const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchCookieConcatenatesSetCookieHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc123"})
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "xyz789"})
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(0)
	c.httpClient = server.Client()

	cookie, err := fetchFrom(c, server.URL)
	if err != nil {
		t.Fatalf("fetchFrom returned error: %v", err)
	}
	if !strings.Contains(cookie, "JSESSIONID=abc123") {
		t.Errorf("cookie %q missing JSESSIONID", cookie)
	}
	if !strings.Contains(cookie, "csrftoken=xyz789") {
		t.Errorf("cookie %q missing csrftoken", cookie)
	}
}

func TestFetchCookieNoCookiesIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(0)
	c.httpClient = server.Client()

	if _, err := fetchFrom(c, server.URL); err == nil {
		t.Fatal("fetchFrom with no Set-Cookie headers succeeded, want error")
	}
}

// fetchFrom exercises the same logic as FetchCookie against an
// arbitrary URL, letting tests substitute a local httptest server in
// place of the hardcoded vendor login page.
func fetchFrom(c *Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
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

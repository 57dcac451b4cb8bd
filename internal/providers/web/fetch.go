// Package web downloads a page and reduces it to readable text.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"
)

const MaxPageBytes = 2 << 20

var (
	ErrInvalidURL      = errors.New("invalid url")
	ErrUnsupportedPage = errors.New("unsupported content type")
	ErrBlockedAddress  = errors.New("address not allowed")
)

type Page struct {
	URL   string
	Title string
	Text  string
	Bytes int64
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

type HTTPFetcher struct {
	client *http.Client
}

// AddrPolicy decides whether a resolved address may be dialed.
type AddrPolicy func(netip.AddrPort) bool

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// PublicOnly rejects loopback, private, link-local, multicast and unspecified
// addresses, which covers cloud metadata endpoints.
func PublicOnly(a netip.Addr) bool {
	a = a.Unmap()
	return a.IsValid() &&
		!a.IsLoopback() &&
		!a.IsPrivate() &&
		!a.IsLinkLocalUnicast() &&
		!a.IsLinkLocalMulticast() &&
		!a.IsInterfaceLocalMulticast() &&
		!a.IsMulticast() &&
		!a.IsUnspecified() &&
		!sharedAddressSpace.Contains(a)
}

// NewHTTPFetcher returns a fetcher that only connects to public addresses.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return newHTTPFetcher(timeout, func(ap netip.AddrPort) bool { return PublicOnly(ap.Addr()) })
}

func newHTTPFetcher(timeout time.Duration, allow AddrPolicy) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialer := &net.Dialer{
		Timeout: timeout,
		// Runs after DNS resolution for every connection, redirects included.
		Control: func(network, address string, _ syscall.RawConn) error {
			ap, err := netip.ParseAddrPort(address)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
			}
			if !allow(ap) {
				return fmt.Errorf("%w: %s", ErrBlockedAddress, ap.Addr())
			}
			return nil
		},
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
	}
	return &HTTPFetcher{client: &http.Client{
		Timeout:       timeout,
		Transport:     transport,
		CheckRedirect: checkRedirect,
	}}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return errors.New("too many redirects")
	}
	_, err := ValidateURL(req.URL.String())
	return err
}

func ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrInvalidURL
	}
	return u, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "ventas-knowledge-extractor/1.0")
	req.Header.Set("Accept", "text/html,text/plain;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", u.Host, resp.StatusCode)
	}

	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPageBytes))
	if err != nil {
		return nil, err
	}

	page := &Page{URL: u.String(), Bytes: int64(len(body))}
	switch mt {
	case "text/html", "application/xhtml+xml", "":
		page.Title, page.Text, err = ExtractText(strings.NewReader(string(body)))
		if err != nil {
			return nil, err
		}
	case "text/plain":
		page.Text = strings.TrimSpace(string(body))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPage, mt)
	}
	return page, nil
}

var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true,
	"nav": true, "footer": true, "iframe": true, "template": true,
}

var blocks = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "tr": true,
}

// ExtractText returns the <title> and the visible text of an HTML document, one
// block per line.
func ExtractText(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var title string
	var lines []string
	var cur strings.Builder

	flush := func() {
		if s := strings.Join(strings.Fields(cur.String()), " "); s != "" {
			lines = append(lines, s)
		}
		cur.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipped[n.Data] {
				return
			}
			if n.Data == "title" {
				if n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
			if blocks[n.Data] {
				flush()
			}
		}
		if n.Type == html.TextNode {
			cur.WriteString(n.Data)
			cur.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blocks[n.Data] {
			flush()
		}
	}
	walk(doc)
	flush()

	return title, strings.Join(lines, "\n"), nil
}

package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gregjones/httpcache"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.NoticeSource = (*NoticeScraper)(nil)

const noticeReferer = "https://see.tongji.edu.cn/index.htm"

// NoticeScraper reads the latest notice from a public portal page: the first
// <a> carrying both title and href inside an element whose class list
// contains the selector class.
type NoticeScraper struct {
	base          *url.URL
	selectorClass string
	client        *http.Client
	policy        *bluemonday.Policy
}

// NewNoticeScraper creates a NoticeScraper for pages under baseURL. When client
// is nil, pages are fetched through an in-memory httpcache transport so
// repeated polls under a schedule revalidate with ETag/Last-Modified.
func NewNoticeScraper(baseURL, selectorClass string, client *http.Client) (*NoticeScraper, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing portal URL: %w", err)
	}
	if client == nil {
		client = &http.Client{Transport: httpcache.NewMemoryCacheTransport()}
	}
	return &NoticeScraper{
		base:          u,
		selectorClass: selectorClass,
		client:        client,
		policy:        bluemonday.StrictPolicy(),
	}, nil
}

// LatestNotice fetches page (a path relative to the portal URL) and returns its
// first notice. Returns driven.ErrNotFound when no element matches.
func (s *NoticeScraper) LatestNotice(ctx context.Context, page string) (model.Notice, error) {
	pageURL, err := s.base.Parse(strings.TrimLeft(page, "/"))
	if err != nil {
		return model.Notice{}, fmt.Errorf("parsing page path %q: %w", page, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return model.Notice{}, &driven.TransportError{Op: "fetch page " + page, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", noticeReferer)

	resp, err := s.client.Do(req)
	if err != nil {
		return model.Notice{}, &driven.TransportError{Op: "fetch page " + page, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if !isSuccess(resp.StatusCode) {
		return model.Notice{}, &driven.TransportError{Op: "fetch page " + page, StatusCode: resp.StatusCode}
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.Notice{}, fmt.Errorf("parsing page %s: %w", page, err)
	}

	anchor := s.findNotice(doc)
	if anchor == nil {
		return model.Notice{}, fmt.Errorf("page %s: no notice under class %q: %w", page, s.selectorClass, driven.ErrNotFound)
	}

	href, _ := attr(anchor, "href")
	title, _ := attr(anchor, "title")
	link, err := s.base.Parse(strings.TrimSpace(href))
	if err != nil {
		return model.Notice{}, fmt.Errorf("page %s: bad notice link %q: %w", page, href, err)
	}

	return model.Notice{
		Page:  page,
		Title: strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(title))),
		URL:   link.String(),
	}, nil
}

// findNotice walks the tree in document order.
func (s *NoticeScraper) findNotice(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && hasClass(n, s.selectorClass) {
		if a := firstAnchor(n); a != nil {
			return a
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := s.findNotice(c); found != nil {
			return found
		}
	}
	return nil
}

// firstAnchor returns n or its first descendant that is an <a> with both a
// non-empty href and title.
func firstAnchor(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "a" {
		href, okHref := attr(n, "href")
		title, okTitle := attr(n, "title")
		if okHref && okTitle && href != "" && title != "" {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if a := firstAnchor(c); a != nil {
			return a
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

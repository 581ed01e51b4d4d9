package portal_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/seewatch/internal/adapter/driven/portal"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

const noticePage = `<!DOCTYPE html>
<html><body>
<div class="nav"><a href="index.htm" title="Home">Home</a></div>
<ul class="news-list main">
  <li><a href="info/1021/5012.htm">no title attribute</a></li>
  <li><a href="info/1021/5013.htm" title="Scholarship &amp; <b>Awards</b> 2024">Scholarship</a></li>
  <li><a href="info/1021/5001.htm" title="Older notice">Older</a></li>
</ul>
</body></html>`

func newNoticeServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range pages {
		mux.HandleFunc("GET "+path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLatestNotice_FirstMatchingAnchor(t *testing.T) {
	srv := newNoticeServer(t, map[string]string{"/tzgg.htm": noticePage})
	scraper, err := portal.NewNoticeScraper(srv.URL+"/", "news-list", nil)
	require.NoError(t, err)

	notice, err := scraper.LatestNotice(context.Background(), "tzgg.htm")

	require.NoError(t, err)
	assert.Equal(t, "tzgg.htm", notice.Page)
	assert.Equal(t, "Scholarship & Awards 2024", notice.Title)
	assert.Equal(t, srv.URL+"/info/1021/5013.htm", notice.URL)
}

func TestLatestNotice_NestedPagePath(t *testing.T) {
	srv := newNoticeServer(t, map[string]string{"/xsdt/list.htm": noticePage})
	scraper, err := portal.NewNoticeScraper(srv.URL, "news-list", nil)
	require.NoError(t, err)

	notice, err := scraper.LatestNotice(context.Background(), "/xsdt/list.htm")

	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/info/1021/5013.htm", notice.URL, "links resolve against the portal root")
}

func TestLatestNotice_NotFound(t *testing.T) {
	srv := newNoticeServer(t, map[string]string{"/empty.htm": `<html><body><ul class="news-list"></ul></body></html>`})
	scraper, err := portal.NewNoticeScraper(srv.URL, "news-list", nil)
	require.NoError(t, err)

	_, err = scraper.LatestNotice(context.Background(), "empty.htm")

	assert.True(t, errors.Is(err, driven.ErrNotFound))
}

func TestLatestNotice_HTTPError(t *testing.T) {
	srv := newNoticeServer(t, map[string]string{})
	scraper, err := portal.NewNoticeScraper(srv.URL, "news-list", nil)
	require.NoError(t, err)

	_, err = scraper.LatestNotice(context.Background(), "missing.htm")

	assert.True(t, driven.IsStatus(err, http.StatusNotFound))
}

// Package portal implements the LectureSource and NoticeSource ports against
// the university portal.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LectureSource = (*Poller)(nil)

const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"
	lectureReferer = "https://1.tongji.edu.cn/workbench"

	sessionCookie = "sessionid"
	cacheBustKey  = "_t"

	envelopeOK   = 200
	maxBodyBytes = 4 << 20
)

// Poller calls the session-protected lecture API. It logs in through the
// Authenticator only when it has no token or the API rejects the one it has,
// and retries a rejected call exactly once.
type Poller struct {
	auth       driven.Authenticator
	lectureURL string
	client     *http.Client
	now        func() time.Time

	// mu serialises install-then-call so concurrent fetches never interleave
	// a re-login with another caller's request.
	mu sync.Mutex
}

// NewPoller creates a Poller. client may be nil to use a default client. The
// client must not carry a cookie jar holding another session.
func NewPoller(auth driven.Authenticator, lectureURL string, client *http.Client) *Poller {
	if client == nil {
		client = &http.Client{}
	}
	return &Poller{
		auth:       auth,
		lectureURL: lectureURL,
		client:     client,
		now:        time.Now,
	}
}

// Fetch returns the raw body of the protected call and the session id that was
// in effect when it succeeded. cachedToken may be empty.
func (p *Poller) Fetch(ctx context.Context, cachedToken string) ([]byte, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token := cachedToken
	if token == "" {
		slog.Info("no cached session, logging in")
		fresh, err := p.auth.Login(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("login: %w", err)
		}
		token = fresh
	}

	body, status, err := p.get(ctx, token)
	if err != nil {
		return nil, "", err
	}
	if isSuccess(status) {
		return body, token, nil
	}

	slog.Warn("lecture api rejected session, logging in again", "status", status)
	fresh, err := p.auth.Login(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("re-login after HTTP %d: %w", status, err)
	}
	token = fresh

	body, status, err = p.get(ctx, token)
	if err != nil {
		return nil, "", err
	}
	if !isSuccess(status) {
		return nil, "", &driven.TransportError{Op: "fetch lectures", StatusCode: status}
	}
	return body, token, nil
}

// lectureEnvelope is the JSON shape of the lecture API response.
type lectureEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data []model.Lecture `json:"data"`
}

// FetchLectures fetches and decodes the lecture listing. On a DecodeError or
// APIError the accepted session token is still returned.
func (p *Poller) FetchLectures(ctx context.Context, cachedToken string) ([]model.Lecture, string, error) {
	body, token, err := p.Fetch(ctx, cachedToken)
	if err != nil {
		return nil, "", err
	}

	// The session was accepted, so token is returned even when the payload is bad.
	var env lectureEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, token, &driven.DecodeError{Raw: string(body), Err: err}
	}
	if env.Code != envelopeOK {
		return nil, token, &driven.APIError{Code: env.Code, Message: env.Msg}
	}
	if env.Data == nil {
		env.Data = []model.Lecture{}
	}

	slog.Debug("fetched lectures", "count", len(env.Data))
	return env.Data, token, nil
}

// get issues one protected GET with token installed as the session cookie.
// A non-2xx status is returned, not treated as an error.
func (p *Poller) get(ctx context.Context, token string) ([]byte, int, error) {
	u, err := url.Parse(p.lectureURL)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing lecture URL: %w", err)
	}
	q := u.Query()
	q.Set(cacheBustKey, strconv.FormatInt(p.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, &driven.TransportError{Op: "fetch lectures", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", lectureReferer)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, &driven.TransportError{Op: "fetch lectures", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, &driven.TransportError{Op: "fetch lectures", StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, resp.StatusCode, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

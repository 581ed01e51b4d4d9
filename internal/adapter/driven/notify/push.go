// Package notify implements the Notifier port for the desktop and the
// ServerChan push services.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

var (
	_ driven.Notifier = (*Push)(nil)
	_ driven.Notifier = (*Local)(nil)
)

// Backend names as matched against the enabled list.
const (
	NameServerChanTurbo = "sct"
	NameServerChan3     = "sc3"
	NameLocal           = "local"
)

// Endpoint templates; %s is replaced with the send key.
const (
	serverChanTurboEndpoint = "https://sctapi.ftqq.com/%s.send"
	serverChan3Endpoint     = "https://%s.push.ft07.com/send"
)

// Push delivers a message as a form-encoded POST to a ServerChan-style service.
type Push struct {
	name     string
	key      string
	endpoint string
	withTags bool
	client   *http.Client
}

// NewServerChanTurbo creates the ServerChan Turbo backend. An empty key leaves
// the backend unconfigured. client may be nil.
func NewServerChanTurbo(key string, client *http.Client) *Push {
	return newPush(NameServerChanTurbo, key, serverChanTurboEndpoint, false, client)
}

// NewServerChan3 creates the ServerChan3 backend, which also receives tags.
func NewServerChan3(key string, client *http.Client) *Push {
	return newPush(NameServerChan3, key, serverChan3Endpoint, true, client)
}

func newPush(name, key, endpoint string, withTags bool, client *http.Client) *Push {
	if client == nil {
		client = &http.Client{}
	}
	return &Push{name: name, key: key, endpoint: endpoint, withTags: withTags, client: client}
}

// WithEndpoint overrides the endpoint template. Intended for tests.
func (p *Push) WithEndpoint(tmpl string) *Push {
	p.endpoint = tmpl
	return p
}

// Name returns the backend identifier.
func (p *Push) Name() string { return p.name }

// Configured reports whether a send key is set.
func (p *Push) Configured() bool { return p.key != "" }

// Send posts title, desp and short (plus tags for ServerChan3).
func (p *Push) Send(ctx context.Context, msg model.Message) error {
	form := url.Values{
		"title": {msg.Title},
		"desp":  {msg.Body},
		"short": {msg.Short},
	}
	if p.withTags && msg.Tags != "" {
		form.Set("tags", msg.Tags)
	}

	endpoint := fmt.Sprintf(p.endpoint, url.PathEscape(p.key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &driven.TransportError{Op: p.name + " send", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	slog.Info("sending push notification", "backend", p.name, "kind", string(msg.Kind), "count", msg.Count)

	resp, err := p.client.Do(req)
	if err != nil {
		// The URL carries the send key; drop it from the error.
		return &driven.TransportError{Op: p.name + " send", Err: redactURLError(err)}
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &driven.TransportError{Op: p.name + " send", StatusCode: resp.StatusCode}
	}

	slog.Debug("push notification sent", "backend", p.name)
	return nil
}

func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

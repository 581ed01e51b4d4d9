// Package sso implements the Authenticator port: the single-sign-on handshake
// that exchanges portal credentials for a session id.
package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Authenticator = (*Authenticator)(nil)

// Fixed form values expected by the identity provider's username/password chain.
const (
	spAuthChainCode = "4c1eb8ec14fa4e8ba0f31188dbf88cdd"
	currentAuth     = "urn_oasis_names_tc_SAML_2.0_ac_classes_BAMUsernamePassword"
)

// DefaultUserAgent is sent on every handshake request.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

// maxBodyBytes caps how much of any handshake response is read.
const maxBodyBytes = 1 << 20

// Endpoints are the four URLs of the handshake.
type Endpoints struct {
	// Bootstrap redirects to the identity provider with entityId and authnLcKey.
	Bootstrap string
	// AuthChain receives the first credential POST.
	AuthChain string
	// AuthnEngine receives the second credential POST and redirects with token, uid and ts.
	AuthnEngine string
	// Finalize exchanges token, uid and ts for {"data":{"sessionid":...}}.
	Finalize string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Bootstrap:   "https://1.tongji.edu.cn/api/ssoservice/system/loginIn",
		AuthChain:   "https://iam.tongji.edu.cn/idp/authcenter/ActionAuthChain",
		AuthnEngine: "https://iam.tongji.edu.cn/idp/AuthnEngine",
		Finalize:    "https://1.tongji.edu.cn/api/sessionservice/session/login",
	}
}

// Authenticator runs the handshake. It keeps no state between Login calls:
// every attempt gets its own cookie jar, discarded when the attempt ends.
type Authenticator struct {
	cred      model.Credential
	encryptor *Encryptor
	endpoints Endpoints
	captcha   string
	transport http.RoundTripper
}

// NewAuthenticator creates an Authenticator. transport may be nil to use
// http.DefaultTransport. captcha is the literal sent in the captcha form field.
func NewAuthenticator(cred model.Credential, encryptor *Encryptor, endpoints Endpoints, captcha string, transport http.RoundTripper) *Authenticator {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Authenticator{
		cred:      cred,
		encryptor: encryptor,
		endpoints: endpoints,
		captcha:   captcha,
		transport: transport,
	}
}

// handshakeState names the step a login attempt has reached.
type handshakeState int

const (
	stateStart handshakeState = iota
	stateParamsExtracted
	stateCredentialsSubmitted
	stateTokenExtracted
)

func (s handshakeState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateParamsExtracted:
		return "params_extracted"
	case stateCredentialsSubmitted:
		return "credentials_submitted"
	case stateTokenExtracted:
		return "token_extracted"
	default:
		return "unknown"
	}
}

// handshake is the value threaded through the steps of one login attempt.
// Each step takes it and returns the advanced copy.
type handshake struct {
	state  handshakeState
	client *http.Client

	entityID   string
	authnLcKey string
	password   string // RSA-encrypted, base64

	token       string
	uid         string
	ts          string
	ssoLoginURL string
}

// Login performs the handshake and returns the session id.
func (a *Authenticator) Login(ctx context.Context) (string, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return "", fmt.Errorf("create cookie jar: %w", err)
	}
	hs := handshake{
		state:  stateStart,
		client: &http.Client{Transport: a.transport, Jar: jar},
	}

	steps := []func(context.Context, handshake) (handshake, error){
		a.extractParams,
		a.submitCredentials,
		a.extractToken,
	}
	for _, step := range steps {
		if hs, err = step(ctx, hs); err != nil {
			slog.Debug("sso handshake failed", "state", hs.state.String(), "error", err)
			return "", err
		}
		slog.Debug("sso handshake advanced", "state", hs.state.String())
	}

	sessionID, err := a.finalize(ctx, hs)
	if err != nil {
		return "", err
	}
	slog.Info("sso login succeeded", "username", a.cred.Username)
	return sessionID, nil
}

// extractParams fetches the bootstrap URL and reads entityId and authnLcKey
// from the URL it redirects to.
func (a *Authenticator) extractParams(ctx context.Context, hs handshake) (handshake, error) {
	res, err := a.do(ctx, hs, "bootstrap", http.MethodGet, a.endpoints.Bootstrap, nil, nil, "")
	if err != nil {
		return hs, err
	}
	if err := checkStatus("bootstrap", res.status); err != nil {
		return hs, err
	}
	if res.finalURL.RawQuery == "" {
		return hs, &driven.HandshakeError{Reason: "no redirect params"}
	}

	params, err := url.ParseQuery(res.finalURL.RawQuery)
	if err != nil {
		return hs, &driven.HandshakeError{Reason: fmt.Sprintf("unparseable redirect params: %v", err)}
	}
	if hs.entityID, err = requireParam(params, "entityId"); err != nil {
		return hs, err
	}
	if hs.authnLcKey, err = requireParam(params, "authnLcKey"); err != nil {
		return hs, err
	}

	hs.state = stateParamsExtracted
	return hs, nil
}

// submitCredentials posts the encrypted credentials to the auth chain. The
// response is not inspected; the request only advances server-side state.
func (a *Authenticator) submitCredentials(ctx context.Context, hs handshake) (handshake, error) {
	encrypted, err := a.encryptor.Encrypt(a.cred.Password)
	if err != nil {
		return hs, err
	}
	hs.password = encrypted

	query := url.Values{"authnLcKey": {hs.authnLcKey}}
	if _, err := a.do(ctx, hs, "auth chain", http.MethodPost, a.endpoints.AuthChain, query, a.credentialForm(hs), a.authChainReferer(hs)); err != nil {
		return hs, err
	}

	hs.state = stateCredentialsSubmitted
	return hs, nil
}

// extractToken posts the credentials to the authn engine and reads token,
// uid and ts from the URL it redirects to.
func (a *Authenticator) extractToken(ctx context.Context, hs handshake) (handshake, error) {
	query := url.Values{
		"entityId":    {hs.entityID},
		"currentAuth": {currentAuth},
		"authnLcKey":  {hs.authnLcKey},
	}
	res, err := a.do(ctx, hs, "authn engine", http.MethodPost, a.endpoints.AuthnEngine, query, a.credentialForm(hs), a.authChainReferer(hs))
	if err != nil {
		return hs, err
	}
	if err := checkStatus("authn engine", res.status); err != nil {
		return hs, err
	}

	params := res.finalURL.Query()
	if hs.token, err = requireParam(params, "token"); err != nil {
		return hs, err
	}
	if hs.uid, err = requireParam(params, "uid"); err != nil {
		return hs, err
	}
	if hs.ts, err = requireParam(params, "ts"); err != nil {
		return hs, err
	}
	hs.ssoLoginURL = res.finalURL.String()

	hs.state = stateTokenExtracted
	return hs, nil
}

// finalize exchanges token, uid and ts for the session id.
func (a *Authenticator) finalize(ctx context.Context, hs handshake) (string, error) {
	form := url.Values{
		"token": {hs.token},
		"ts":    {hs.ts},
		"uid":   {hs.uid},
	}
	res, err := a.do(ctx, hs, "finalize", http.MethodPost, a.endpoints.Finalize, nil, form, hs.ssoLoginURL)
	if err != nil {
		return "", err
	}
	if err := checkStatus("finalize", res.status); err != nil {
		return "", err
	}

	var payload map[string]any
	if err := json.Unmarshal(res.body, &payload); err != nil {
		return "", &driven.DecodeError{Raw: string(res.body), Err: err}
	}

	data, _ := payload["data"].(map[string]any)
	sessionID, _ := data["sessionid"].(string)
	if sessionID == "" {
		return "", &driven.HandshakeError{Reason: "field not found: data.sessionid"}
	}
	return sessionID, nil
}

func (a *Authenticator) credentialForm(hs handshake) url.Values {
	return url.Values{
		"j_username":      {a.cred.Username},
		"j_password":      {hs.password},
		"j_checkcode":     {a.captcha},
		"op":              {"login"},
		"spAuthChainCode": {spAuthChainCode},
		"authnLcKey":      {hs.authnLcKey},
	}
}

func (a *Authenticator) authChainReferer(hs handshake) string {
	q := url.Values{"entityId": {hs.entityID}, "authnLcKey": {hs.authnLcKey}}
	return a.endpoints.AuthChain + "?" + q.Encode()
}

// response is what the steps need from an HTTP exchange.
type response struct {
	status   int
	finalURL *url.URL
	body     []byte
}

// do sends one handshake request through the attempt's client, following
// redirects, and returns the final URL with the body already read.
func (a *Authenticator) do(ctx context.Context, hs handshake, op, method, rawURL string, query, form url.Values, referer string) (*response, error) {
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &driven.TransportError{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := hs.client.Do(req)
	if err != nil {
		return nil, &driven.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &driven.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	return &response{status: resp.StatusCode, finalURL: resp.Request.URL, body: data}, nil
}

func checkStatus(op string, status int) error {
	if status < 200 || status > 299 {
		return &driven.TransportError{Op: op, StatusCode: status}
	}
	return nil
}

func requireParam(params url.Values, name string) (string, error) {
	v := params.Get(name)
	if v == "" {
		return "", &driven.HandshakeError{Reason: "missing redirect param " + name}
	}
	return v, nil
}

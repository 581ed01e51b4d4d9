// Package github implements the Notifier port by opening GitHub issues.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*IssueNotifier)(nil)

// Name is the backend identifier matched against the enabled list.
const Name = "github"

// issueLabel is attached to every issue the notifier opens.
const issueLabel = "seewatch"

// IssueNotifier opens one issue per message in a configured repository.
type IssueNotifier struct {
	gh    *gh.Client
	token string
	repo  string
}

// NewIssueNotifier creates an IssueNotifier with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
//
// An empty token or repo leaves the notifier unconfigured.
func NewIssueNotifier(token, repo string) *IssueNotifier {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &IssueNotifier{gh: client, token: token, repo: repo}
}

// NewIssueNotifierWithHTTPClient creates an IssueNotifier with a custom
// http.Client and base URL. This constructor is intended for testing,
// allowing injection of an httptest server.
func NewIssueNotifierWithHTTPClient(httpClient *http.Client, baseURL, token, repo string) (*IssueNotifier, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &IssueNotifier{gh: client, token: token, repo: repo}, nil
}

// Name returns the backend identifier.
func (n *IssueNotifier) Name() string { return Name }

// Configured reports whether both a token and a repository are set.
func (n *IssueNotifier) Configured() bool {
	return n.token != "" && n.repo != ""
}

// Send opens an issue titled with the message headline whose body is the
// markdown digest.
func (n *IssueNotifier) Send(ctx context.Context, msg model.Message) error {
	owner, repo, err := splitRepo(n.repo)
	if err != nil {
		return err
	}

	req := &gh.IssueRequest{
		Title:  gh.Ptr(issueTitle(msg)),
		Body:   gh.Ptr(issueBody(msg)),
		Labels: &[]string{issueLabel, string(msg.Kind)},
	}

	issue, resp, err := n.gh.Issues.Create(ctx, owner, repo, req)
	if err != nil {
		var ghErr *gh.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil {
			return &driven.TransportError{Op: "create issue in " + n.repo, StatusCode: ghErr.Response.StatusCode, Err: err}
		}
		return &driven.TransportError{Op: "create issue in " + n.repo, Err: err}
	}

	logRateLimit(resp, "issues.create")
	slog.Info("github issue opened", "repo", n.repo, "number", issue.GetNumber(), "kind", string(msg.Kind))
	return nil
}

func issueTitle(msg model.Message) string {
	if msg.Short == "" {
		return msg.Title
	}
	return msg.Title + ": " + msg.Short
}

func issueBody(msg model.Message) string {
	var b strings.Builder
	b.WriteString(msg.Body)
	b.WriteString("\n\n---\n_Reported by seewatch at ")
	b.WriteString(time.Now().Format(time.RFC3339))
	b.WriteString("._\n")
	return b.String()
}

// logRateLimit emits a debug log with rate limit info and warns when remaining
// quota is low.
func logRateLimit(resp *gh.Response, endpoint string) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits "owner/repo" into its components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}

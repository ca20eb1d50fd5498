// Package github loads repository activity from the GitHub REST API into the
// raw layer.
package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
	"github.com/cyderes/lakehouse-pipeline/internal/logging"
)

const (
	acceptJSON = "application/vnd.github.v3+json"
	userAgent  = "lakehouse-pipeline"

	// maxRateLimitWait bounds a single wait for X-RateLimit-Reset.
	maxRateLimitWait = 15 * time.Minute
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

var linkNext = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// Client is a GitHub REST client with retries
type Client struct {
	baseURL string
	token   string
	http    *retryablehttp.Client
	logger  *zap.Logger
	now     func() time.Time
}

// NewClient creates a client for the configured API URL and token.
func NewClient(cfg config.GitHubConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		token:   cfg.Token,
		logger:  logger,
		now:     time.Now,
	}

	hc := retryablehttp.NewClient()
	hc.RetryWaitMin = 1 * time.Second
	hc.RetryWaitMax = 30 * time.Second
	hc.RetryMax = cfg.RetryMax
	hc.Logger = logging.Leveled{L: logger.Sugar()}
	hc.Backoff = c.backoff
	c.http = hc
	return c
}

// backoff waits until X-RateLimit-Reset on 429 responses and falls back to
// exponential backoff otherwise.
func (c *Client) backoff(min, max time.Duration, attempt int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			wait := time.Unix(reset, 0).Sub(c.now())
			if wait < 0 {
				wait = 0
			}
			if wait > maxRateLimitWait {
				wait = maxRateLimitWait
			}
			c.logger.Warn("rate limited", zap.Duration("wait", wait))
			return wait
		}
	}
	return retryablehttp.DefaultBackoff(min, max, attempt, resp)
}

// page is one decoded response and the URL of the next page, if any.
type page struct {
	body json.RawMessage
	next string
}

func (c *Client) get(ctx context.Context, rawURL, accept string) (*page, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = c.baseURL + rawURL
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	if accept == "" {
		accept = acceptJSON
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("GitHub API error: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	return &page{body: body, next: nextLink(resp.Header.Get("Link"))}, nil
}

// nextLink returns the rel="next" target of a Link header.
func nextLink(header string) string {
	if m := linkNext.FindStringSubmatch(header); m != nil {
		return m[1]
	}
	return ""
}

// AuthenticatedUser returns the login of the token owner.
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	p, err := c.get(ctx, "/user", "")
	if err != nil {
		return "", err
	}
	var user struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(p.body, &user); err != nil {
		return "", errors.Wrap(err, "decoding user")
	}
	return user.Login, nil
}

// UserRepos lists the names of all repositories the token owner can access.
func (c *Client) UserRepos(ctx context.Context, maxPages int) ([]string, error) {
	q := url.Values{}
	q.Set("per_page", "100")
	q.Set("affiliation", "owner,collaborator,organization_member")
	q.Set("sort", "updated")

	var names []string
	next := "/user/repos?" + q.Encode()
	for n := 0; next != "" && (maxPages <= 0 || n < maxPages); n++ {
		p, err := c.get(ctx, next, "")
		if err != nil {
			return nil, err
		}
		var repos []struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(p.body, &repos); err != nil {
			return nil, errors.Wrap(err, "decoding repositories")
		}
		if len(repos) == 0 {
			break
		}
		for _, r := range repos {
			names = append(names, r.Name)
		}
		c.logger.Debug("listed repositories", zap.Int("page", n+1), zap.Int("count", len(repos)))
		next = p.next
	}
	return names, nil
}

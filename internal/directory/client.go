// Package directory implements the external directory gateway for Jira and
// Confluence. All calls are rate-limited to respect the upstream limit of
// roughly one request per second per system, and every pagination loop has a
// hard page cap so a misbehaving upstream cannot stall a sync run.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"delegated-groups/internal/domain"
)

// Defaults applied by NewClient when the corresponding Config field is zero.
const (
	defaultRequestTimeout = 15 * time.Second
	defaultMaxPages       = 500
	defaultRPS            = 1.0
	defaultEmailMapTTL    = 10 * time.Minute

	jiraPageSize       = 50
	confluencePageSize = 200
)

// SystemConfig holds connection settings for one directory system.
// BaseURL must end with "/rest/" (e.g. "https://jira.example.com/rest/").
type SystemConfig struct {
	BaseURL string
	Token   string // bearer token
}

// Config holds gateway settings for both systems.
type Config struct {
	Jira       SystemConfig
	Confluence SystemConfig

	RequestTimeout    time.Duration
	MaxPages          int
	RequestsPerSecond float64
	// EmailMapTTL bounds how long the Confluence bulk email map is reused.
	// Member lists themselves are never cached here; that cache is owned by
	// a single reconciliation run.
	EmailMapTTL time.Duration
}

// Client implements domain.DirectoryGateway over the Jira and Confluence
// REST APIs.
type Client struct {
	cfg      Config
	http     *http.Client
	logger   *slog.Logger
	limiters map[domain.System]*rate.Limiter

	emailMu      sync.Mutex
	emailMap     map[string]string
	emailFetched time.Time
}

// NewClient builds a gateway client. Zero-valued limits fall back to
// conservative defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRPS
	}
	if cfg.EmailMapTTL <= 0 {
		cfg.EmailMapTTL = defaultEmailMapTTL
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
		limiters: map[domain.System]*rate.Limiter{
			domain.SystemJira:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
			domain.SystemConfluence: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		},
	}
}

var _ domain.DirectoryGateway = (*Client)(nil)

func (c *Client) systemConfig(system domain.System) (SystemConfig, error) {
	switch system {
	case domain.SystemJira:
		return c.cfg.Jira, nil
	case domain.SystemConfluence:
		return c.cfg.Confluence, nil
	default:
		return SystemConfig{}, domain.ErrValidation("unknown directory system %q", system)
	}
}

// checkConfigured rejects calls for a system with no base URL so an
// unconfigured deployment fails with a clear upstream error instead of a
// malformed request.
func (c *Client) checkConfigured(system domain.System) (SystemConfig, error) {
	sc, err := c.systemConfig(system)
	if err != nil {
		return SystemConfig{}, err
	}
	if sc.BaseURL == "" {
		return SystemConfig{}, domain.ErrUpstream("%s: base URL is not configured", system)
	}
	return sc, nil
}

// getJSON performs one rate-limited GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, system domain.System, rawURL string, out any) error {
	sc, err := c.checkConfigured(system)
	if err != nil {
		return err
	}
	if err := c.limiters[system].Wait(ctx); err != nil {
		return domain.ErrUpstream("%s: rate limiter wait: %v", system, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+sc.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ErrUpstream("%s: %v", system, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return domain.ErrUpstream("%s: GET %s returned %d: %s", system, req.URL.Path, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.ErrUpstream("%s: decode response: %v", system, err)
	}
	return nil
}

// ListGroupMembers returns the current members of the named group.
func (c *Client) ListGroupMembers(ctx context.Context, system domain.System, groupName string) ([]domain.Member, error) {
	switch system {
	case domain.SystemJira:
		return c.listJiraMembers(ctx, groupName)
	case domain.SystemConfluence:
		return c.listConfluenceMembers(ctx, groupName)
	default:
		return nil, domain.ErrValidation("unknown directory system %q", system)
	}
}

// listJiraMembers pages through /api/2/group/member using startAt/isLast.
func (c *Client) listJiraMembers(ctx context.Context, groupName string) ([]domain.Member, error) {
	base := c.cfg.Jira.BaseURL + "api/2/group/member?groupname=" +
		url.QueryEscape(groupName) + "&includeInactiveUsers=false"

	var members []domain.Member
	startAt := 0
	for page := 0; page < c.cfg.MaxPages; page++ {
		var body struct {
			Values []struct {
				Name         string `json:"name"`
				EmailAddress string `json:"emailAddress"`
			} `json:"values"`
			IsLast bool `json:"isLast"`
		}
		pageURL := fmt.Sprintf("%s&maxResults=%d&startAt=%d", base, jiraPageSize, startAt)
		if err := c.getJSON(ctx, domain.SystemJira, pageURL, &body); err != nil {
			return nil, err
		}
		for _, u := range body.Values {
			if u.Name == "" {
				continue
			}
			members = append(members, domain.Member{Username: u.Name, Email: u.EmailAddress})
		}
		if body.IsLast {
			return members, nil
		}
		startAt += jiraPageSize
	}
	return nil, domain.ErrUpstream("jira: group %q member listing exceeded %d pages", groupName, c.cfg.MaxPages)
}

// listConfluenceMembers pages through /api/group/{name}/member using the
// short-page heuristic, then fills in emails from the bulk email map since
// the member payload does not include them.
func (c *Client) listConfluenceMembers(ctx context.Context, groupName string) ([]domain.Member, error) {
	base := c.cfg.Confluence.BaseURL + "api/group/" + url.PathEscape(groupName) + "/member"

	var usernames []string
	start := 0
	for page := 0; page < c.cfg.MaxPages; page++ {
		var body struct {
			Results []struct {
				Username string `json:"username"`
			} `json:"results"`
		}
		pageURL := fmt.Sprintf("%s?limit=%d&start=%d", base, confluencePageSize, start)
		if err := c.getJSON(ctx, domain.SystemConfluence, pageURL, &body); err != nil {
			return nil, err
		}
		for _, u := range body.Results {
			if u.Username != "" {
				usernames = append(usernames, u.Username)
			}
		}
		if len(body.Results) < confluencePageSize {
			return c.enrichEmails(ctx, usernames)
		}
		start += confluencePageSize
	}
	return nil, domain.ErrUpstream("confluence: group %q member listing exceeded %d pages", groupName, c.cfg.MaxPages)
}

func (c *Client) enrichEmails(ctx context.Context, usernames []string) ([]domain.Member, error) {
	emailMap, err := c.confluenceEmailMap(ctx)
	if err != nil {
		// Missing emails degrade identity quality but must not block a
		// sync run; members fall back to username-only identities.
		c.logger.Warn("confluence email map unavailable", "error", err)
		emailMap = map[string]string{}
	}
	members := make([]domain.Member, 0, len(usernames))
	for _, name := range usernames {
		members = append(members, domain.Member{
			Username: name,
			Email:    emailMap[strings.ToLower(name)],
		})
	}
	return members, nil
}

// confluenceEmailMap fetches the ScriptRunner getAllEmails map, reusing a
// previous fetch for up to EmailMapTTL so one sync run does not hit the bulk
// endpoint once per owning group.
func (c *Client) confluenceEmailMap(ctx context.Context) (map[string]string, error) {
	c.emailMu.Lock()
	defer c.emailMu.Unlock()

	if c.emailMap != nil && time.Since(c.emailFetched) < c.cfg.EmailMapTTL {
		return c.emailMap, nil
	}

	var entries []struct {
		LowerUsername string `json:"lower_username"`
		Email         string `json:"email"`
	}
	u := c.cfg.Confluence.BaseURL + "scriptrunner/latest/custom/getAllEmails"
	if err := c.getJSON(ctx, domain.SystemConfluence, u, &entries); err != nil {
		return nil, err
	}

	m := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.LowerUsername == "" {
			continue
		}
		m[strings.ToLower(e.LowerUsername)] = e.Email
	}
	c.emailMap = m
	c.emailFetched = time.Now()
	c.logger.Debug("confluence email map refreshed", "entries", len(m))
	return m, nil
}

// ListGroupNames returns every group name in the system via the ScriptRunner
// getAllGroups endpoint. The pruner treats this listing as authoritative.
func (c *Client) ListGroupNames(ctx context.Context, system domain.System) ([]string, error) {
	sc, err := c.checkConfigured(system)
	if err != nil {
		return nil, err
	}
	var names []string
	u := sc.BaseURL + "scriptrunner/latest/custom/getAllGroups"
	if err := c.getJSON(ctx, system, u, &names); err != nil {
		return nil, err
	}
	return names, nil
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kurihiro0119/github-org-mirror/internal/domain"
)

// Client is the API client for a running github-org-mirror server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Health is the server health as reported by /health
type Health struct {
	Status     string `json:"status"`
	Authorized bool   `json:"authorized"`
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetOrganizations retrieves the mirrored organizations
func (c *Client) GetOrganizations(ctx context.Context) ([]domain.Organization, error) {
	var response struct {
		Orgs []domain.Organization `json:"orgs"`
	}
	if err := c.get(ctx, "/github/orgs", nil, &response); err != nil {
		return nil, err
	}
	return response.Orgs, nil
}

// GetMembers retrieves the mirrored members
func (c *Client) GetMembers(ctx context.Context) ([]domain.Member, error) {
	var response struct {
		Members []domain.Member `json:"members"`
	}
	if err := c.get(ctx, "/github/members", nil, &response); err != nil {
		return nil, err
	}
	return response.Members, nil
}

// GetRepositories retrieves the mirrored repositories
func (c *Client) GetRepositories(ctx context.Context) ([]domain.Repository, error) {
	var response struct {
		Repos []domain.Repository `json:"repos"`
	}
	if err := c.get(ctx, "/github/repos", nil, &response); err != nil {
		return nil, err
	}
	return response.Repos, nil
}

// GetCommits retrieves mirrored commits. Empty repo or branch match all.
func (c *Client) GetCommits(ctx context.Context, repo, branch string) ([]domain.Commit, error) {
	params := url.Values{}
	if repo != "" {
		params.Set("repo", repo)
	}
	if branch != "" {
		params.Set("branch", branch)
	}

	var response struct {
		Commits []domain.Commit `json:"commits"`
	}
	if err := c.get(ctx, "/github/commits", params, &response); err != nil {
		return nil, err
	}
	return response.Commits, nil
}

// GetSnapshot retrieves every mirrored collection at once
func (c *Client) GetSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	var response struct {
		Data *domain.Snapshot `json:"data"`
	}
	if err := c.get(ctx, "/github/snapshot", nil, &response); err != nil {
		return nil, err
	}
	if response.Data == nil {
		return &domain.Snapshot{}, nil
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) (*Health, error) {
	var response Health
	if err := c.get(ctx, "/health", nil, &response); err != nil {
		return nil, err
	}
	if response.Status != "ok" {
		return nil, fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return &response, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

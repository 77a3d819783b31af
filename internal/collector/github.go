package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v55/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/github-org-mirror/internal/domain"
	apperrors "github.com/kurihiro0119/github-org-mirror/internal/errors"
)

// githubCollector implements Remote using GitHub API
type githubCollector struct {
	client         *github.Client
	rateLimiter    RateLimiter
	commitPageSize int
	logger         *zap.Logger
}

// Option configures a GitHub collector
type Option func(*githubCollector)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *githubCollector) {
		c.logger = logger
	}
}

// WithRateLimiter replaces the default rate limiter
func WithRateLimiter(limiter RateLimiter) Option {
	return func(c *githubCollector) {
		c.rateLimiter = limiter
	}
}

// WithCommitPageSize sets the page size of ListCommits. Zero keeps the API
// default of 30.
func WithCommitPageSize(n int) Option {
	return func(c *githubCollector) {
		c.commitPageSize = n
	}
}

// NewGitHubCollector creates a new GitHub collector authenticated with token
func NewGitHubCollector(token string, opts ...Option) Remote {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	return NewGitHubCollectorWithClient(github.NewClient(tc), opts...)
}

// NewGitHubCollectorWithClient creates a collector around an existing client
func NewGitHubCollectorWithClient(client *github.Client, opts ...Option) Remote {
	c := &githubCollector{
		client: client,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rateLimiter == nil {
		c.rateLimiter = NewRateLimiter(100*time.Millisecond, c.logger)
	}
	c.logger = c.logger.Named("collector")
	return c
}

// ListOrganizations lists the organizations of the authenticated user
func (c *githubCollector) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	orgs, resp, err := c.client.Organizations.List(ctx, "", nil)
	if err != nil {
		return nil, classify(err, "failed to list organizations")
	}
	c.updateRateLimitFromResponse(resp)

	out := make([]domain.Organization, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, toOrganization(org))
	}
	return out, nil
}

// GetOrganization retrieves the detail record of an organization
func (c *githubCollector) GetOrganization(ctx context.Context, org string) (domain.Organization, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return domain.Organization{}, err
	}

	detail, resp, err := c.client.Organizations.Get(ctx, org)
	if err != nil {
		return domain.Organization{}, classify(err, "failed to get organization %s", org)
	}
	c.updateRateLimitFromResponse(resp)

	return toOrganization(detail), nil
}

// ListMembers retrieves all members of an organization
func (c *githubCollector) ListMembers(ctx context.Context, org string) ([]domain.Member, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var allMembers []domain.Member
	opts := &github.ListMembersOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		members, resp, err := c.client.Organizations.ListMembers(ctx, org, opts)
		if err != nil {
			return nil, classify(err, "failed to list members for %s", org)
		}

		c.updateRateLimitFromResponse(resp)

		for _, member := range members {
			allMembers = append(allMembers, ToMember(member))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return allMembers, nil
}

// ListRepositories retrieves all repositories of an organization
func (c *githubCollector) ListRepositories(ctx context.Context, org string) ([]domain.Repository, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var allRepos []domain.Repository
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		repos, resp, err := c.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, classify(err, "failed to list repositories for %s", org)
		}

		c.updateRateLimitFromResponse(resp)

		for _, repo := range repos {
			allRepos = append(allRepos, ToRepository(repo))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return allRepos, nil
}

// ListBranches retrieves all branches of a repository
func (c *githubCollector) ListBranches(ctx context.Context, owner, repo string) ([]domain.Branch, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var allBranches []domain.Branch
	opts := &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		branches, resp, err := c.client.Repositories.ListBranches(ctx, owner, repo, opts)
		if err != nil {
			return nil, classify(err, "failed to list branches for %s/%s", owner, repo)
		}

		c.updateRateLimitFromResponse(resp)

		for _, b := range branches {
			allBranches = append(allBranches, domain.Branch{
				Name: b.GetName(),
				SHA:  b.GetCommit().GetSHA(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return allBranches, nil
}

// ListCommits retrieves one page of commits reachable from branch
func (c *githubCollector) ListCommits(ctx context.Context, owner, repo, branch string) ([]domain.Commit, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	opts := &github.CommitsListOptions{SHA: branch}
	if c.commitPageSize > 0 {
		opts.PerPage = c.commitPageSize
	}

	commits, resp, err := c.client.Repositories.ListCommits(ctx, owner, repo, opts)
	if err != nil {
		// Skip if repository is empty or has no commits
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return []domain.Commit{}, nil
		}
		return nil, classify(err, "failed to list commits for %s/%s@%s", owner, repo, branch)
	}
	c.updateRateLimitFromResponse(resp)

	out := make([]domain.Commit, 0, len(commits))
	for _, commit := range commits {
		out = append(out, toCommit(commit))
	}
	return out, nil
}

// CreateHook registers an organization webhook
func (c *githubCollector) CreateHook(ctx context.Context, org string, hook HookConfig) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	contentType := hook.ContentType
	if contentType == "" {
		contentType = "json"
	}
	config := map[string]interface{}{
		"url":          hook.URL,
		"content_type": contentType,
	}
	if hook.Secret != "" {
		config["secret"] = hook.Secret
	}

	_, resp, err := c.client.Organizations.CreateHook(ctx, org, &github.Hook{
		Name:   github.String("web"),
		Active: github.Bool(true),
		Events: hook.Events,
		Config: config,
	})
	if err != nil {
		return classify(err, "failed to create hook for %s", org)
	}
	c.updateRateLimitFromResponse(resp)

	c.logger.Info("registered organization webhook", zap.String("org", org), zap.Strings("events", hook.Events))
	return nil
}

// updateRateLimitFromResponse updates the rate limiter from API response
func (c *githubCollector) updateRateLimitFromResponse(resp *github.Response) {
	if resp != nil && resp.Rate.Limit > 0 {
		c.rateLimiter.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}

// classify wraps a go-github error into an AppError carrying a code that
// matches the HTTP status of the failed call.
func classify(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return apperrors.NewRateLimitedError(msg, err)
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := apperrors.ErrCodeInternal
		switch respErr.Response.StatusCode {
		case http.StatusUnauthorized:
			code = apperrors.ErrCodeUnauthorized
		case http.StatusForbidden:
			code = apperrors.ErrCodeForbidden
		case http.StatusNotFound:
			code = apperrors.ErrCodeNotFound
		}
		return &apperrors.AppError{Code: code, Message: msg, Err: err}
	}

	return apperrors.NewInternalError(msg, err)
}

func toOrganization(org *github.Organization) domain.Organization {
	return domain.Organization{
		ID:          org.GetID(),
		NodeID:      org.GetNodeID(),
		Login:       org.GetLogin(),
		Name:        org.GetName(),
		URL:         org.GetHTMLURL(),
		Description: org.Description,
		AvatarURL:   org.GetAvatarURL(),
		ReposURL:    org.GetReposURL(),
		MembersURL:  org.GetMembersURL(),
	}
}

// ToMember maps a GitHub user to a mirrored member
func ToMember(user *github.User) domain.Member {
	return domain.Member{
		NodeID:    user.GetNodeID(),
		Login:     user.GetLogin(),
		AvatarURL: user.GetAvatarURL(),
	}
}

// ToRepository maps a GitHub repository to a mirrored repository
func ToRepository(repo *github.Repository) domain.Repository {
	return domain.Repository{
		NodeID:   repo.GetNodeID(),
		Name:     repo.GetName(),
		FullName: repo.GetFullName(),
		URL:      repo.GetHTMLURL(),
		Owner:    repo.GetOwner().GetLogin(),
	}
}

func toCommit(rc *github.RepositoryCommit) domain.Commit {
	commit := rc.GetCommit()
	return domain.Commit{
		SHA:       rc.GetSHA(),
		URL:       rc.GetHTMLURL(),
		Message:   commit.GetMessage(),
		Author:    ToSignature(commit.GetAuthor()),
		Committer: ToSignature(commit.GetCommitter()),
	}
}

// ToSignature maps a GitHub commit author to a signature
func ToSignature(a *github.CommitAuthor) domain.Signature {
	return domain.Signature{
		Name:  a.GetName(),
		Email: a.GetEmail(),
		Date:  a.GetDate().Time,
	}
}

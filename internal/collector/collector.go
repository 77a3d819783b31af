package collector

import (
	"context"

	"github.com/kurihiro0119/github-org-mirror/internal/domain"
)

// Remote is the GitHub API surface the seeder walks. Every call may fail
// with a transport or status error; cancellation and timeouts are owned by
// the implementation and the context passed in.
type Remote interface {
	// ListOrganizations lists the organizations of the authenticated user
	ListOrganizations(ctx context.Context) ([]domain.Organization, error)

	// GetOrganization retrieves the detail record of an organization
	GetOrganization(ctx context.Context, org string) (domain.Organization, error)

	// ListMembers retrieves all members of an organization
	ListMembers(ctx context.Context, org string) ([]domain.Member, error)

	// ListRepositories retrieves all repositories of an organization
	ListRepositories(ctx context.Context, org string) ([]domain.Repository, error)

	// ListBranches retrieves all branches of a repository
	ListBranches(ctx context.Context, owner, repo string) ([]domain.Branch, error)

	// ListCommits retrieves one page of commits reachable from branch,
	// newest first. Repository and Branch are left for the caller to set.
	ListCommits(ctx context.Context, owner, repo, branch string) ([]domain.Commit, error)

	// CreateHook registers an organization webhook
	CreateHook(ctx context.Context, org string, hook HookConfig) error
}

// HookConfig describes an organization webhook to register
type HookConfig struct {
	URL         string
	Secret      string
	ContentType string // "json" when empty
	Events      []string
}

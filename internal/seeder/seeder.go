// Package seeder performs the one-time bulk traversal that fills the mirror
// right after authorization.
package seeder

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kurihiro0119/github-org-mirror/internal/branchdiff"
	"github.com/kurihiro0119/github-org-mirror/internal/collector"
	"github.com/kurihiro0119/github-org-mirror/internal/domain"
	apperrors "github.com/kurihiro0119/github-org-mirror/internal/errors"
	"github.com/kurihiro0119/github-org-mirror/internal/store"
)

// DefaultReferenceBranch is the branch other branches are diffed against
const DefaultReferenceBranch = "main"

// HookEvents are the webhook events the mirror consumes
var HookEvents = []string{"push", "repository", "organization"}

// RemoteFactory builds the remote used for a seed from the authorized token
type RemoteFactory func(token string) collector.Remote

// Report summarizes one seed run
type Report struct {
	RunID         string   `json:"runId"`
	Organization  string   `json:"organization"`
	Organizations int      `json:"organizations"`
	Members       int      `json:"members"`
	Repositories  int      `json:"repositories"`
	Commits       int      `json:"commits"`
	Skipped       []string `json:"skipped"` // repositories without a reference branch
	Failed        []string `json:"failed"`  // fetches that failed and were isolated
}

// Seeder walks the remote organization and populates the store
type Seeder struct {
	store           *store.Store
	newRemote       RemoteFactory
	logger          *zap.Logger
	referenceBranch string
	concurrency     int
	hook            *collector.HookConfig
}

// Option configures a Seeder
type Option func(*Seeder)

// WithReferenceBranch sets the branch other branches are diffed against
func WithReferenceBranch(name string) Option {
	return func(s *Seeder) {
		if name != "" {
			s.referenceBranch = name
		}
	}
}

// WithConcurrency bounds the number of repositories, and of branches within
// one repository, processed at the same time.
func WithConcurrency(n int) Option {
	return func(s *Seeder) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithHook registers an organization webhook for HookEvents during the seed
func WithHook(url, secret string) Option {
	return func(s *Seeder) {
		if url == "" {
			return
		}
		s.hook = &collector.HookConfig{URL: url, Secret: secret, Events: HookEvents}
	}
}

// New creates a seeder writing into st
func New(st *store.Store, newRemote RemoteFactory, logger *zap.Logger, opts ...Option) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Seeder{
		store:           st,
		newRemote:       newRemote,
		logger:          logger.Named("seeder"),
		referenceBranch: DefaultReferenceBranch,
		concurrency:     5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize records token as the mirror's credential and seeds the store.
// Only the first successful call seeds; later calls report false and do
// nothing.
func (s *Seeder) Authorize(ctx context.Context, token string) (bool, error) {
	if !s.store.SetCredential(token) {
		s.logger.Debug("credential already held or empty, not seeding")
		return false, nil
	}

	report, err := s.Seed(ctx, s.newRemote(token))
	fields := []zap.Field{
		zap.String("run_id", report.RunID),
		zap.String("org", report.Organization),
		zap.Int("members", report.Members),
		zap.Int("repositories", report.Repositories),
		zap.Int("commits", report.Commits),
		zap.Strings("skipped", report.Skipped),
		zap.Strings("failed", report.Failed),
	}
	if err != nil {
		s.logger.Warn("seed finished with errors", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("seed finished", fields...)
	}
	return true, err
}

// Seed walks organizations, members, repositories, branches and commits of
// the first organization visible to remote. Failures of individual
// repositories or branches are isolated: everything fetched successfully is
// kept and the returned error combines every failure.
func (s *Seeder) Seed(ctx context.Context, remote collector.Remote) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	log := s.logger.With(zap.String("run_id", report.RunID))

	orgs, err := remote.ListOrganizations(ctx)
	if err != nil {
		return report, fmt.Errorf("seed: %w", err)
	}
	if len(orgs) == 0 {
		return report, apperrors.NewNotFoundError("organization")
	}
	s.store.UpsertOrganizations(orgs...)
	report.Organizations = len(orgs)

	scope := orgs[0]
	report.Organization = scope.Login
	log = log.With(zap.String("org", scope.Login))
	log.Info("seeding organization")

	if s.hook != nil {
		if err := remote.CreateHook(ctx, scope.Login, *s.hook); err != nil {
			log.Warn("failed to register webhook", zap.Error(err))
		}
	}

	out := &outcomes{}

	detail, err := remote.GetOrganization(ctx, scope.Login)
	if err != nil {
		out.fail(log, scope.Login, err)
	} else {
		s.store.UpsertOrganizations(detail)
	}

	members, err := remote.ListMembers(ctx, scope.Login)
	if err != nil {
		out.fail(log, scope.Login+" members", err)
	} else {
		s.store.UpsertMembers(members...)
		report.Members = len(members)
	}

	repos, err := remote.ListRepositories(ctx, scope.Login)
	if err != nil {
		out.fail(log, scope.Login+" repositories", err)
		out.report(report)
		return report, out.err
	}
	s.store.UpsertRepositories(repos...)
	report.Repositories = len(repos)

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, repo := range repos {
		repo := repo
		if repo.Owner == "" {
			repo.Owner = scope.Login
		}
		g.Go(func() error {
			s.syncRepository(ctx, remote, repo, out, log)
			return nil
		})
	}
	_ = g.Wait()

	out.report(report)
	return report, out.err
}

// syncRepository mirrors the reference branch of repo and the commits each
// other branch carries on top of it.
func (s *Seeder) syncRepository(ctx context.Context, remote collector.Remote, repo domain.Repository, out *outcomes, log *zap.Logger) {
	log = log.With(zap.String("repo", repo.FullName))

	branches, err := remote.ListBranches(ctx, repo.Owner, repo.Name)
	if err != nil {
		out.fail(log, repo.FullName, err)
		return
	}

	found := false
	for _, b := range branches {
		if b.Name == s.referenceBranch {
			found = true
			break
		}
	}
	if !found {
		log.Info("no reference branch, skipping commits", zap.String("branch", s.referenceBranch))
		out.skip(repo.FullName)
		return
	}

	reference, err := remote.ListCommits(ctx, repo.Owner, repo.Name, s.referenceBranch)
	if err != nil {
		out.fail(log, repo.FullName+"@"+s.referenceBranch, err)
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, b := range branches {
		if b.Name == s.referenceBranch {
			continue
		}
		branch := b.Name
		g.Go(func() error {
			commits, err := remote.ListCommits(ctx, repo.Owner, repo.Name, branch)
			if err != nil {
				out.fail(log, repo.FullName+"@"+branch, err)
				return nil
			}
			unique := branchdiff.UniqueCommits(reference, commits)
			out.added(s.store.AppendCommits(attribute(unique, repo.NodeID, branch)...))
			return nil
		})
	}
	_ = g.Wait()

	out.added(s.store.AppendCommits(attribute(reference, repo.NodeID, s.referenceBranch)...))
}

func attribute(commits []domain.Commit, repository, branch string) []domain.Commit {
	out := make([]domain.Commit, len(commits))
	for i, c := range commits {
		c.Repository = repository
		c.Branch = branch
		out[i] = c
	}
	return out
}

// outcomes collects the results of concurrent seed tasks
type outcomes struct {
	mu      sync.Mutex
	err     error
	failed  []string
	skipped []string
	commits int
}

func (o *outcomes) fail(log *zap.Logger, target string, err error) {
	log.Warn("fetch failed, continuing", zap.String("target", target), zap.Error(err))

	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = multierr.Append(o.err, fmt.Errorf("%s: %w", target, err))
	o.failed = append(o.failed, target)
}

func (o *outcomes) skip(target string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped = append(o.skipped, target)
}

func (o *outcomes) added(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commits += n
}

func (o *outcomes) report(r *Report) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r.Failed = o.failed
	r.Skipped = o.skipped
	r.Commits = o.commits
}

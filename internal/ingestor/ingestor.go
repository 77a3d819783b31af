// Package ingestor maps GitHub webhook events onto store mutations.
//
// Every mutation is an idempotent upsert or delete-by-key, so events may be
// replayed and may arrive before, during or after the bulk seed.
package ingestor

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v55/github"
	"go.uber.org/zap"

	"github.com/kurihiro0119/github-org-mirror/internal/collector"
	"github.com/kurihiro0119/github-org-mirror/internal/domain"
	"github.com/kurihiro0119/github-org-mirror/internal/store"
)

// Ingestor applies webhook events to a store
type Ingestor struct {
	store  *store.Store
	logger *zap.Logger
}

// New creates an ingestor writing into st
func New(st *store.Store, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		store:  st,
		logger: logger.Named("ingestor"),
	}
}

// Ingest parses a raw webhook payload of the given X-GitHub-Event type and
// applies it. Unknown event types and malformed payloads are dropped; the
// result reports whether the store was addressed.
func (i *Ingestor) Ingest(eventType string, payload []byte) bool {
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		i.logger.Debug("dropping unparseable event", zap.String("event", eventType), zap.Error(err))
		return false
	}
	return i.Apply(event)
}

// Apply applies an already parsed event
func (i *Ingestor) Apply(event interface{}) bool {
	switch e := event.(type) {
	case *github.PushEvent:
		return i.push(e)
	case *github.RepositoryEvent:
		return i.repository(e)
	case *github.OrganizationEvent:
		return i.organization(e)
	default:
		i.logger.Debug("ignoring event", zap.String("type", fmt.Sprintf("%T", event)))
		return false
	}
}

func (i *Ingestor) push(e *github.PushEvent) bool {
	repo := e.GetRepo().GetNodeID()
	if repo == "" {
		i.logger.Debug("ignoring push without repository")
		return false
	}
	branch := strings.TrimPrefix(e.GetRef(), "refs/heads/")

	commits := make([]domain.Commit, 0, len(e.Commits))
	for _, hc := range e.Commits {
		sha := hc.GetID()
		if sha == "" {
			sha = hc.GetSHA()
		}
		if sha == "" {
			continue
		}

		author := collector.ToSignature(hc.GetAuthor())
		committer := collector.ToSignature(hc.GetCommitter())
		// Webhook authors carry no date; the commit timestamp stands in.
		if ts := hc.GetTimestamp().Time; !ts.IsZero() {
			if author.Date.IsZero() {
				author.Date = ts
			}
			if committer.Date.IsZero() {
				committer.Date = ts
			}
		}

		commits = append(commits, domain.Commit{
			Repository: repo,
			Branch:     branch,
			SHA:        sha,
			URL:        hc.GetURL(),
			Message:    hc.GetMessage(),
			Author:     author,
			Committer:  committer,
		})
	}

	added := i.store.AppendCommits(commits...)
	i.logger.Debug("push applied",
		zap.String("repo", e.GetRepo().GetFullName()),
		zap.String("branch", branch),
		zap.Int("received", len(e.Commits)),
		zap.Int("added", added))
	return true
}

func (i *Ingestor) repository(e *github.RepositoryEvent) bool {
	repo := e.GetRepo()
	if repo.GetNodeID() == "" {
		i.logger.Debug("ignoring repository event without node id", zap.String("action", e.GetAction()))
		return false
	}

	switch e.GetAction() {
	case "created":
		i.store.CreateRepository(collector.ToRepository(repo))
	case "deleted":
		i.store.DeleteRepository(repo.GetNodeID())
	default:
		i.logger.Debug("ignoring repository action", zap.String("action", e.GetAction()))
		return false
	}

	i.logger.Info("repository event applied", zap.String("action", e.GetAction()), zap.String("repo", repo.GetFullName()))
	return true
}

func (i *Ingestor) organization(e *github.OrganizationEvent) bool {
	user := e.GetMembership().GetUser()
	if user.GetNodeID() == "" {
		i.logger.Debug("ignoring organization event without member", zap.String("action", e.GetAction()))
		return false
	}

	switch e.GetAction() {
	case "member_added":
		i.store.CreateMember(collector.ToMember(user))
	case "member_removed":
		i.store.DeleteMember(user.GetNodeID())
	default:
		i.logger.Debug("ignoring organization action", zap.String("action", e.GetAction()))
		return false
	}

	i.logger.Info("membership event applied", zap.String("action", e.GetAction()), zap.String("login", user.GetLogin()))
	return true
}

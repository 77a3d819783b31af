// Package store holds the in-memory mirror of one GitHub organization.
//
// Members, repositories and organizations are keyed by node id; an upsert
// replaces the stored value in place, so the latest known state wins while
// insertion order is preserved. Commits are keyed by (repository, sha) and
// the first insertion wins: commits are immutable, so replaying a push never
// grows the mirror.
package store

import (
	"sync"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/kurihiro0119/github-org-mirror/internal/domain"
)

// Store is the shared mirror. It is safe for concurrent use by the seeder
// and the event ingestor.
type Store struct {
	mu         sync.RWMutex
	credential string

	orgs    *orderedmap.OrderedMap[string, domain.Organization]
	members *orderedmap.OrderedMap[string, domain.Member]
	repos   *orderedmap.OrderedMap[string, domain.Repository]
	commits *orderedmap.OrderedMap[domain.CommitKey, domain.Commit]
}

// New creates an empty store
func New() *Store {
	return &Store{
		orgs:    orderedmap.NewOrderedMap[string, domain.Organization](),
		members: orderedmap.NewOrderedMap[string, domain.Member](),
		repos:   orderedmap.NewOrderedMap[string, domain.Repository](),
		commits: orderedmap.NewOrderedMap[domain.CommitKey, domain.Commit](),
	}
}

// SetCredential stores token if no credential is held yet. It reports
// whether this call stored it; the check and the set happen under one lock,
// so exactly one concurrent caller can win.
func (s *Store) SetCredential(token string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.credential != "" {
		return false
	}
	s.credential = token
	return true
}

// HasCredential reports whether a credential is held
func (s *Store) HasCredential() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential != ""
}

// Credential returns the held credential, or "" if none
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// UpsertOrganizations inserts or replaces organizations by node id
func (s *Store) UpsertOrganizations(orgs ...domain.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, org := range orgs {
		if org.NodeID == "" {
			continue
		}
		s.orgs.Set(org.NodeID, org)
	}
}

// UpsertMembers inserts or replaces members by node id
func (s *Store) UpsertMembers(members ...domain.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range members {
		if m.NodeID == "" {
			continue
		}
		s.members.Set(m.NodeID, m)
	}
}

// UpsertRepositories inserts or replaces repositories by node id
func (s *Store) UpsertRepositories(repos ...domain.Repository) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range repos {
		if r.NodeID == "" {
			continue
		}
		s.repos.Set(r.NodeID, r)
	}
}

// CreateMember upserts a single member
func (s *Store) CreateMember(m domain.Member) {
	s.UpsertMembers(m)
}

// CreateRepository upserts a single repository
func (s *Store) CreateRepository(r domain.Repository) {
	s.UpsertRepositories(r)
}

// DeleteMember removes the member with the given node id. Removing an
// absent id is a no-op and reports false.
func (s *Store) DeleteMember(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members.Delete(nodeID)
}

// DeleteRepository removes the repository with the given node id. Removing
// an absent id is a no-op and reports false.
func (s *Store) DeleteRepository(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos.Delete(nodeID)
}

// AppendCommits adds commits not yet known under their (repository, sha)
// key and returns how many were added.
func (s *Store) AppendCommits(commits ...domain.Commit) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, c := range commits {
		if c.SHA == "" {
			continue
		}
		key := c.Key()
		if s.commits.Has(key) {
			continue
		}
		s.commits.Set(key, c)
		added++
	}
	return added
}

// Organizations returns the mirrored organizations in insertion order
func (s *Store) Organizations() []domain.Organization {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.orgs)
}

// Members returns the mirrored members in insertion order
func (s *Store) Members() []domain.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.members)
}

// Repositories returns the mirrored repositories in insertion order
func (s *Store) Repositories() []domain.Repository {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.repos)
}

// Commits returns the mirrored commits in insertion order
func (s *Store) Commits() []domain.Commit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return values(s.commits)
}

// CommitsFor returns commits filtered by repository node id and branch.
// An empty filter value matches everything.
func (s *Store) CommitsFor(repository, branch string) []domain.Commit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Commit, 0)
	for el := s.commits.Front(); el != nil; el = el.Next() {
		c := el.Value
		if repository != "" && c.Repository != repository {
			continue
		}
		if branch != "" && c.Branch != branch {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Snapshot returns all four collections read under one lock
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.Snapshot{
		Organizations: values(s.orgs),
		Members:       values(s.members),
		Repositories:  values(s.repos),
		Commits:       values(s.commits),
	}
}

func values[K comparable, V any](m *orderedmap.OrderedMap[K, V]) []V {
	out := make([]V, 0, m.Len())
	for el := m.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

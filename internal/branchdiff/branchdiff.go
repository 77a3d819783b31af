// Package branchdiff finds the commits a branch carries on top of a
// reference branch.
//
// Both inputs are single pages of history as returned by the commit listing
// endpoint, newest first. A branch that diverged deeper than one page from
// the reference shares no sha with it inside the page and is reported in
// full; the result is therefore only exact for branches whose merge base
// falls within the fetched page.
package branchdiff

import "github.com/kurihiro0119/github-org-mirror/internal/domain"

// UniqueCommits returns the prefix of target that precedes the first commit
// also present in reference. When no commit is shared, all of target is
// returned. The result never aliases target.
func UniqueCommits(reference, target []domain.Commit) []domain.Commit {
	known := make(map[string]struct{}, len(reference))
	for _, c := range reference {
		known[c.SHA] = struct{}{}
	}

	base := len(target)
	for i, c := range target {
		if _, ok := known[c.SHA]; ok {
			base = i
			break
		}
	}

	out := make([]domain.Commit, base)
	copy(out, target[:base])
	return out
}

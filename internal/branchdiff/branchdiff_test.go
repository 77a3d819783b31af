package branchdiff

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kurihiro0119/github-org-mirror/internal/domain"
)

func commits(shas ...string) []domain.Commit {
	out := make([]domain.Commit, 0, len(shas))
	for _, sha := range shas {
		out = append(out, domain.Commit{SHA: sha})
	}
	return out
}

func TestUniqueCommits(t *testing.T) {
	tests := []struct {
		name      string
		reference []domain.Commit
		target    []domain.Commit
		want      []domain.Commit
	}{
		{
			name:      "branch ahead of an older reference commit",
			reference: commits("c5", "c4", "c3", "c2", "c1"),
			target:    commits("c7", "c6", "c4", "c3", "c2", "c1"),
			want:      commits("c7", "c6"),
		},
		{
			name:      "no shared sha returns the whole branch",
			reference: commits("m2", "m1"),
			target:    commits("x3", "x2", "x1"),
			want:      commits("x3", "x2", "x1"),
		},
		{
			name:      "branch equal to reference",
			reference: commits("m3", "m2", "m1"),
			target:    commits("m3", "m2", "m1"),
			want:      commits(),
		},
		{
			name:      "branch behind reference",
			reference: commits("m3", "m2", "m1"),
			target:    commits("m2", "m1"),
			want:      commits(),
		},
		{
			name:      "empty branch",
			reference: commits("m1"),
			target:    nil,
			want:      commits(),
		},
		{
			name:      "empty reference",
			reference: nil,
			target:    commits("f1"),
			want:      commits("f1"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UniqueCommits(tt.reference, tt.target)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("UniqueCommits() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUniqueCommitsDoesNotAliasTarget(t *testing.T) {
	target := commits("f2", "f1", "m1")
	got := UniqueCommits(commits("m1"), target)

	got[0].SHA = "changed"
	if target[0].SHA != "f2" {
		t.Fatalf("result aliases target: target[0] = %q", target[0].SHA)
	}
}

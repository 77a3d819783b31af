package domain

import "time"

// Signature identifies the author or committer of a commit
type Signature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// Commit represents a commit attributed to a repository and branch
type Commit struct {
	Repository string    `json:"repository"` // node id of the owning repository
	Branch     string    `json:"branch"`
	SHA        string    `json:"sha"`
	URL        string    `json:"url"`
	Message    string    `json:"message"`
	Author     Signature `json:"author"`
	Committer  Signature `json:"committer"`
}

// CommitKey is the natural key of a commit within the mirror
type CommitKey struct {
	Repository string
	SHA        string
}

// Key returns the commit's natural key
func (c Commit) Key() CommitKey {
	return CommitKey{Repository: c.Repository, SHA: c.SHA}
}

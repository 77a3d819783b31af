package ingestor

import (
	"testing"

	"github.com/google/go-github/v55/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kurihiro0119/github-org-mirror/internal/domain"
	"github.com/kurihiro0119/github-org-mirror/internal/store"
)

const pushPayload = `{
  "ref": "refs/heads/feature",
  "repository": {"id": 10, "node_id": "R_1", "name": "api", "full_name": "acme/api"},
  "commits": [
    {
      "id": "a1",
      "message": "First",
      "url": "https://github.com/acme/api/commit/a1",
      "timestamp": "2024-03-01T10:00:00Z",
      "author": {"name": "Octo Cat", "email": "octo@example.com", "username": "octocat"},
      "committer": {"name": "GitHub", "email": "noreply@github.com"}
    },
    {
      "id": "a2",
      "message": "Second",
      "timestamp": "2024-03-01T11:00:00Z",
      "author": {"name": "Octo Cat", "email": "octo@example.com"}
    }
  ]
}`

func newIngestor(t *testing.T) (*Ingestor, *store.Store) {
	t.Helper()
	st := store.New()
	return New(st, zaptest.NewLogger(t)), st
}

func TestPushAppendsCommits(t *testing.T) {
	ing, st := newIngestor(t)

	require.True(t, ing.Ingest("push", []byte(pushPayload)))

	commits := st.Commits()
	require.Len(t, commits, 2)

	c := commits[0]
	assert.Equal(t, "R_1", c.Repository)
	assert.Equal(t, "feature", c.Branch)
	assert.Equal(t, "a1", c.SHA)
	assert.Equal(t, "First", c.Message)
	assert.Equal(t, "https://github.com/acme/api/commit/a1", c.URL)
	assert.Equal(t, "Octo Cat", c.Author.Name)
	assert.Equal(t, "noreply@github.com", c.Committer.Email)
	assert.Equal(t, 10, c.Author.Date.Hour(), "author date falls back to the commit timestamp")
	assert.Equal(t, "a2", commits[1].SHA)
}

func TestPushRedeliveryIsDeduplicated(t *testing.T) {
	ing, st := newIngestor(t)

	require.True(t, ing.Ingest("push", []byte(pushPayload)))
	require.True(t, ing.Ingest("push", []byte(pushPayload)))

	assert.Len(t, st.Commits(), 2)
}

func TestPushSkipsCommitsWithoutID(t *testing.T) {
	ing, st := newIngestor(t)

	ok := ing.Apply(&github.PushEvent{
		Ref:  github.String("refs/heads/main"),
		Repo: &github.PushEventRepository{NodeID: github.String("R_1")},
		Commits: []*github.HeadCommit{
			{Message: github.String("no id")},
			{SHA: github.String("b1")},
		},
	})
	require.True(t, ok)

	commits := st.Commits()
	require.Len(t, commits, 1)
	assert.Equal(t, "b1", commits[0].SHA)
	assert.Equal(t, "main", commits[0].Branch)
}

func TestPushWithoutRepositoryIsIgnored(t *testing.T) {
	ing, st := newIngestor(t)

	assert.False(t, ing.Ingest("push", []byte(`{"ref":"refs/heads/main","commits":[{"id":"a1"}]}`)))
	assert.Empty(t, st.Commits())
}

func TestRepositoryCreatedAndDeleted(t *testing.T) {
	ing, st := newIngestor(t)
	created := `{"action":"created","repository":{"node_id":"R_9","name":"new","full_name":"acme/new","html_url":"https://github.com/acme/new","owner":{"login":"acme"}}}`
	deleted := `{"action":"deleted","repository":{"node_id":"R_9","name":"new","full_name":"acme/new"}}`

	require.True(t, ing.Ingest("repository", []byte(created)))
	require.True(t, ing.Ingest("repository", []byte(created)))

	repos := st.Repositories()
	require.Len(t, repos, 1, "replayed creation does not duplicate")
	assert.Equal(t, domain.Repository{NodeID: "R_9", Name: "new", FullName: "acme/new", URL: "https://github.com/acme/new", Owner: "acme"}, repos[0])

	require.True(t, ing.Ingest("repository", []byte(deleted)))
	require.True(t, ing.Ingest("repository", []byte(deleted)))
	assert.Empty(t, st.Repositories())
}

func TestRepositoryDeletedForUnknownIDIsNoop(t *testing.T) {
	ing, st := newIngestor(t)
	st.CreateRepository(domain.Repository{NodeID: "R_1", Name: "api"})

	assert.NotPanics(t, func() {
		ing.Ingest("repository", []byte(`{"action":"deleted","repository":{"node_id":"R_404"}}`))
	})
	assert.Len(t, st.Repositories(), 1)
}

func TestRepositoryOtherActionsIgnored(t *testing.T) {
	ing, st := newIngestor(t)

	assert.False(t, ing.Ingest("repository", []byte(`{"action":"archived","repository":{"node_id":"R_1"}}`)))
	assert.Empty(t, st.Repositories())
}

func TestMemberAddedThenRemoved(t *testing.T) {
	ing, st := newIngestor(t)
	added := `{"action":"member_added","membership":{"user":{"node_id":"U_7","login":"hubot","avatar_url":"https://avatars/hubot"}}}`
	removed := `{"action":"member_removed","membership":{"user":{"node_id":"U_7","login":"hubot"}}}`

	require.True(t, ing.Ingest("organization", []byte(added)))
	members := st.Members()
	require.Len(t, members, 1)
	assert.Equal(t, domain.Member{NodeID: "U_7", Login: "hubot", AvatarURL: "https://avatars/hubot"}, members[0])

	require.True(t, ing.Ingest("organization", []byte(removed)))
	assert.Empty(t, st.Members())
}

func TestMemberRemovedBeforeSeedIsNoop(t *testing.T) {
	ing, st := newIngestor(t)

	assert.True(t, ing.Ingest("organization", []byte(`{"action":"member_removed","membership":{"user":{"node_id":"U_1"}}}`)))
	assert.Empty(t, st.Members())
}

func TestUnrecognizedAndMalformedEventsAreDropped(t *testing.T) {
	ing, st := newIngestor(t)

	tests := []struct {
		name      string
		eventType string
		payload   string
	}{
		{name: "unknown type", eventType: "not_an_event", payload: `{}`},
		{name: "known but unhandled type", eventType: "star", payload: `{"action":"created"}`},
		{name: "malformed json", eventType: "push", payload: `{"ref":`},
		{name: "wrong shape", eventType: "repository", payload: `{"repository":"acme/api"}`},
		{name: "organization renamed", eventType: "organization", payload: `{"action":"renamed","membership":{"user":{"node_id":"U_1"}}}`},
		{name: "member event without user", eventType: "organization", payload: `{"action":"member_added"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, ing.Ingest(tt.eventType, []byte(tt.payload)))
			})
		})
	}

	assert.Empty(t, st.Commits())
	assert.Empty(t, st.Repositories())
	assert.Empty(t, st.Members())
	assert.False(t, ing.Apply(nil))
}

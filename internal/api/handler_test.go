package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/github-org-mirror/internal/collector"
	"github.com/kurihiro0119/github-org-mirror/internal/domain"
	"github.com/kurihiro0119/github-org-mirror/internal/ingestor"
	"github.com/kurihiro0119/github-org-mirror/internal/seeder"
	"github.com/kurihiro0119/github-org-mirror/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// staticRemote serves one organization with no repositories
type staticRemote struct{}

func (staticRemote) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	return []domain.Organization{{ID: 1, NodeID: "O_1", Login: "acme"}}, nil
}

func (staticRemote) GetOrganization(ctx context.Context, org string) (domain.Organization, error) {
	return domain.Organization{ID: 1, NodeID: "O_1", Login: "acme", Name: "Acme Inc"}, nil
}

func (staticRemote) ListMembers(ctx context.Context, org string) ([]domain.Member, error) {
	return []domain.Member{{NodeID: "U_1", Login: "octocat"}}, nil
}

func (staticRemote) ListRepositories(ctx context.Context, org string) ([]domain.Repository, error) {
	return nil, nil
}

func (staticRemote) ListBranches(ctx context.Context, owner, repo string) ([]domain.Branch, error) {
	return nil, nil
}

func (staticRemote) ListCommits(ctx context.Context, owner, repo, branch string) ([]domain.Commit, error) {
	return nil, nil
}

func (staticRemote) CreateHook(ctx context.Context, org string, hook collector.HookConfig) error {
	return nil
}

func newTestRouter(t *testing.T, opts ...HandlerOption) (*gin.Engine, *store.Store) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := store.New()
	sd := seeder.New(st, func(string) collector.Remote { return staticRemote{} }, logger)
	h := NewHandler(st, sd, ingestor.New(st, logger), logger, opts...)
	return SetupRoutes(h, logger), st
}

func do(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func webhookRequest(event, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	return req
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","authorized":false}`, w.Body.String())
}

func TestReadRoutes(t *testing.T) {
	router, st := newTestRouter(t)
	st.UpsertOrganizations(domain.Organization{ID: 1, NodeID: "O_1", Login: "acme"})
	st.CreateMember(domain.Member{NodeID: "U_1", Login: "octocat"})
	st.CreateRepository(domain.Repository{NodeID: "R_1", Name: "api", FullName: "acme/api"})
	st.AppendCommits(
		domain.Commit{Repository: "R_1", Branch: "main", SHA: "m1"},
		domain.Commit{Repository: "R_1", Branch: "feature", SHA: "f1"},
	)

	var orgs struct {
		Orgs []domain.Organization `json:"orgs"`
	}
	w := do(router, httptest.NewRequest(http.MethodGet, "/github/orgs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orgs))
	require.Len(t, orgs.Orgs, 1)
	assert.Equal(t, "O_1", orgs.Orgs[0].NodeID)

	w = do(router, httptest.NewRequest(http.MethodGet, "/github/members", nil))
	assert.Contains(t, w.Body.String(), `"login":"octocat"`)

	w = do(router, httptest.NewRequest(http.MethodGet, "/github/repos", nil))
	assert.Contains(t, w.Body.String(), `"fullName":"acme/api"`)

	var commits struct {
		Commits []domain.Commit `json:"commits"`
	}
	w = do(router, httptest.NewRequest(http.MethodGet, "/github/commits?repo=R_1&branch=feature", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &commits))
	require.Len(t, commits.Commits, 1)
	assert.Equal(t, "f1", commits.Commits[0].SHA)

	var snapshot struct {
		Data domain.Snapshot `json:"data"`
	}
	w = do(router, httptest.NewRequest(http.MethodGet, "/github/snapshot", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Len(t, snapshot.Data.Commits, 2)
}

func TestReadRoutesOnEmptyMirrorReturnArrays(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, httptest.NewRequest(http.MethodGet, "/github/commits", nil))
	assert.JSONEq(t, `{"commits":[]}`, w.Body.String())
}

func TestWebhookAppliesEvent(t *testing.T) {
	router, st := newTestRouter(t)
	body := `{"action":"created","repository":{"node_id":"R_9","name":"new","full_name":"acme/new"}}`

	w := do(router, webhookRequest("repository", body))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"accepted":true}`, w.Body.String())
	assert.Len(t, st.Repositories(), 1)
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, webhookRequest("ping", `{"zen":"Keep it logically awesome."}`))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"accepted":false}`, w.Body.String())
}

func TestWebhookRequiresEventHeader(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, webhookRequest("", `{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookSignature(t *testing.T) {
	router, st := newTestRouter(t, WithWebhookSecret("s3cret"))
	body := `{"action":"member_added","membership":{"user":{"node_id":"U_2","login":"hubot"}}}`

	unsigned := do(router, webhookRequest("organization", body))
	assert.Equal(t, http.StatusUnauthorized, unsigned.Code)

	forged := webhookRequest("organization", body)
	forged.Header.Set("X-Hub-Signature-256", sign("wrong", body))
	assert.Equal(t, http.StatusUnauthorized, do(router, forged).Code)
	assert.Empty(t, st.Members())

	signed := webhookRequest("organization", body)
	signed.Header.Set("X-Hub-Signature-256", sign("s3cret", body))
	w := do(router, signed)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Len(t, st.Members(), 1)
}

func TestWebhookRejectsUnsupportedContentType(t *testing.T) {
	router, _ := newTestRouter(t)

	req := webhookRequest("push", `{}`)
	req.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, http.StatusBadRequest, do(router, req).Code)
}

func TestOAuthCallbackDisabled(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, httptest.NewRequest(http.MethodGet, "/github/callback?code=abc", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOAuthCallbackSeeds(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_abc","token_type":"bearer"}`))
	}))
	defer tokenServer.Close()

	router, st := newTestRouter(t, WithOAuth(&oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenServer.URL},
	}))

	w := do(router, httptest.NewRequest(http.MethodGet, "/github/callback", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, httptest.NewRequest(http.MethodGet, "/github/callback?code=abc", nil))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"seeding":true}`, w.Body.String())

	assert.Eventually(t, func() bool {
		return len(st.Members()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "gho_abc", st.Credential())

	w = do(router, httptest.NewRequest(http.MethodGet, "/github/callback?code=again", nil))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"seeding":false}`, w.Body.String())
	assert.Equal(t, "gho_abc", st.Credential())
}

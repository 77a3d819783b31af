package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v55/github"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	apperrors "github.com/kurihiro0119/github-org-mirror/internal/errors"
	"github.com/kurihiro0119/github-org-mirror/internal/ingestor"
	"github.com/kurihiro0119/github-org-mirror/internal/seeder"
	"github.com/kurihiro0119/github-org-mirror/internal/store"
)

// Handler handles API requests
type Handler struct {
	store         *store.Store
	seeder        *seeder.Seeder
	ingestor      *ingestor.Ingestor
	oauth         *oauth2.Config
	webhookSecret []byte
	logger        *zap.Logger

	// seedContext is the parent context of seeds started from the OAuth
	// callback; they outlive the request that triggered them.
	seedContext context.Context
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithWebhookSecret enables signature verification of webhook deliveries
func WithWebhookSecret(secret string) HandlerOption {
	return func(h *Handler) {
		if secret != "" {
			h.webhookSecret = []byte(secret)
		}
	}
}

// WithOAuth enables the OAuth callback route
func WithOAuth(cfg *oauth2.Config) HandlerOption {
	return func(h *Handler) {
		h.oauth = cfg
	}
}

// WithSeedContext sets the parent context of background seeds
func WithSeedContext(ctx context.Context) HandlerOption {
	return func(h *Handler) {
		h.seedContext = ctx
	}
}

// NewHandler creates a new API handler
func NewHandler(st *store.Store, sd *seeder.Seeder, ing *ingestor.Ingestor, logger *zap.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		store:       st,
		seeder:      sd,
		ingestor:    ing,
		logger:      logger.Named("api"),
		seedContext: context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GetOrganizations returns the mirrored organizations
// GET /github/orgs
func (h *Handler) GetOrganizations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"orgs": h.store.Organizations(),
	})
}

// GetMembers returns the mirrored members
// GET /github/members
func (h *Handler) GetMembers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"members": h.store.Members(),
	})
}

// GetRepositories returns the mirrored repositories
// GET /github/repos
func (h *Handler) GetRepositories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"repos": h.store.Repositories(),
	})
}

// GetCommits returns the mirrored commits, optionally filtered by
// repository node id and branch
// GET /github/commits?repo=&branch=
func (h *Handler) GetCommits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"commits": h.store.CommitsFor(c.Query("repo"), c.Query("branch")),
	})
}

// GetSnapshot returns all mirrored collections at once
// GET /github/snapshot
func (h *Handler) GetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": h.store.Snapshot(),
	})
}

// ReceiveWebhook applies a GitHub webhook delivery to the mirror
// POST /webhooks
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	delivery := github.DeliveryID(c.Request)
	if delivery == "" {
		delivery = uuid.NewString()
	}
	log := h.logger.With(zap.String("delivery", delivery))

	eventType := github.WebHookType(c.Request)
	if eventType == "" {
		respondError(c, apperrors.NewBadRequestError("missing X-GitHub-Event header"))
		return
	}

	payload, err := github.ValidatePayload(c.Request, h.webhookSecret)
	if err != nil {
		log.Warn("rejected webhook delivery", zap.String("event", eventType), zap.Error(err))
		if len(h.webhookSecret) > 0 {
			respondError(c, apperrors.NewUnauthorizedError("invalid webhook signature"))
			return
		}
		respondError(c, apperrors.NewBadRequestError("invalid webhook payload"))
		return
	}

	accepted := h.ingestor.Ingest(eventType, payload)
	log.Debug("webhook delivery handled", zap.String("event", eventType), zap.Bool("accepted", accepted))

	c.JSON(http.StatusAccepted, gin.H{
		"accepted": accepted,
	})
}

// OAuthCallback exchanges an OAuth code for a token and seeds the mirror in
// the background
// GET /github/callback?code=
func (h *Handler) OAuthCallback(c *gin.Context) {
	if h.oauth == nil {
		respondError(c, apperrors.NewNotFoundError("oauth callback"))
		return
	}

	code := c.Query("code")
	if code == "" {
		respondError(c, apperrors.NewBadRequestError("missing code"))
		return
	}

	token, err := h.oauth.Exchange(c.Request.Context(), code)
	if err != nil {
		respondError(c, &apperrors.AppError{Code: apperrors.ErrCodeUnauthorized, Message: "oauth exchange failed", Err: err})
		return
	}

	seeding := !h.store.HasCredential()
	if seeding {
		go func() {
			_, _ = h.seeder.Authorize(h.seedContext, token.AccessToken)
		}()
	}

	c.JSON(http.StatusAccepted, gin.H{
		"seeding": seeding,
	})
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"authorized": h.store.HasCredential(),
	})
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	code := apperrors.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeUnauthorized:
		status = http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		status = http.StatusForbidden
	case apperrors.ErrCodeBadRequest:
		status = http.StatusBadRequest
	case apperrors.ErrCodeRateLimited:
		status = http.StatusTooManyRequests
	}

	message := err.Error()
	if appErr, ok := err.(*apperrors.AppError); ok {
		message = appErr.Message
	}

	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

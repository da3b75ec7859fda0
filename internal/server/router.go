package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/solsticelabs/beacon/internal/auth"
	"github.com/solsticelabs/beacon/internal/subject"
	"go.uber.org/zap"
)

const subjectContextKey = "beacon_subject_id"

var (
	errMissingResolver      = errors.New("subject resolver dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingOriginPolicy  = errors.New("origin policy dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SubjectResolver resolves subjects and their claim sets.
type SubjectResolver interface {
	ValidateCredentials(ctx context.Context, username, password string) (bool, error)
	FindByUsername(ctx context.Context, username string) (*subject.ResolvedSubject, error)
	FindBySubjectID(ctx context.Context, subjectID string) (*subject.ResolvedSubject, error)
	AutoProvisionUser(provider, externalUserID string, claims []subject.Claim) (subject.ResolvedSubject, error)
}

// TokenManager issues and validates access tokens.
type TokenManager interface {
	IssueSubjectToken(ctx context.Context, resolved subject.ResolvedSubject) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// OriginPolicy answers cross-origin preflight decisions.
type OriginPolicy interface {
	IsOriginAllowed(origin string) bool
}

// ExternalVerifier validates external provider ID tokens.
type ExternalVerifier interface {
	Verify(ctx context.Context, rawToken string) (auth.ExternalIdentity, error)
}

// Dependencies wires the HTTP edge. ExternalVerifier is optional; the
// federated login endpoint is only registered when one is configured.
type Dependencies struct {
	Resolver         SubjectResolver
	TokenManager     TokenManager
	OriginPolicy     OriginPolicy
	ExternalVerifier ExternalVerifier
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin router around the resolution core.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Resolver == nil {
		return nil, errMissingResolver
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.OriginPolicy == nil {
		return nil, errMissingOriginPolicy
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: deps.OriginPolicy.IsOriginAllowed,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	handler := &httpHandler{
		resolver: deps.Resolver,
		tokens:   deps.TokenManager,
		verifier: deps.ExternalVerifier,
		logger:   logger,
	}

	router.POST("/auth/login", handler.handleLogin)
	if handler.verifier != nil {
		router.POST("/auth/external", handler.handleExternalLogin)
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/userinfo", handler.handleUserInfo)

	return router, nil
}

type httpHandler struct {
	resolver SubjectResolver
	tokens   TokenManager
	verifier ExternalVerifier
	logger   *zap.Logger
}

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type externalLoginRequestPayload struct {
	IDToken string `json:"id_token"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	valid, err := h.resolver.ValidateCredentials(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.logger.Error("credential validation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolution_failed"})
		return
	}
	if !valid {
		// Unknown user and wrong password are indistinguishable on purpose.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}

	resolved, err := h.resolver.FindByUsername(c.Request.Context(), request.Username)
	if err != nil {
		h.logger.Error("subject resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolution_failed"})
		return
	}
	if resolved == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}

	h.respondWithToken(c, *resolved)
}

func (h *httpHandler) handleExternalLogin(c *gin.Context) {
	var request externalLoginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	identity, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("external token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	provisioned, err := h.resolver.AutoProvisionUser(identity.Provider, identity.Subject, identity.Claims)
	if err != nil {
		h.logger.Error("auto-provisioning failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "provisioning_failed"})
		return
	}

	h.respondWithToken(c, provisioned)
}

func (h *httpHandler) respondWithToken(c *gin.Context, resolved subject.ResolvedSubject) {
	token, expiresIn, err := h.tokens.IssueSubjectToken(c.Request.Context(), resolved)
	if err != nil {
		h.logger.Error("failed to issue access token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}

	subjectID, err := h.tokens.ValidateToken(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Set(subjectContextKey, subjectID)
	c.Next()
}

type userInfoResponsePayload struct {
	Subject           string          `json:"sub"`
	PreferredUsername string          `json:"preferred_username"`
	Claims            []subject.Claim `json:"claims"`
}

func (h *httpHandler) handleUserInfo(c *gin.Context) {
	subjectID := c.GetString(subjectContextKey)
	if subjectID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	resolved, err := h.resolver.FindBySubjectID(c.Request.Context(), subjectID)
	if err != nil {
		h.logger.Error("subject resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolution_failed"})
		return
	}
	if resolved == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	c.JSON(http.StatusOK, userInfoResponsePayload{
		Subject:           resolved.SubjectID,
		PreferredUsername: resolved.Username,
		Claims:            resolved.Claims,
	})
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movierama/internal/config"
	"github.com/iliyamo/movierama/internal/logging"
	"github.com/iliyamo/movierama/internal/model"
	"github.com/iliyamo/movierama/internal/repository"
	"github.com/iliyamo/movierama/internal/utils"
)

// UserStore is the part of repository.UserRepo the auth endpoints use.
type UserStore interface {
	Create(ctx context.Context, email, password string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore is the part of repository.TokenRepo the auth endpoints use.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Tokens TokenStore
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t}
}

// ----- DTOs -----

type credentialsReq struct {
	Email    string `json:"email" validate:"required,email,max=191"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func (h *AuthHandler) bindCredentials(c echo.Context) (credentialsReq, error) {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return req, errors.New("invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := c.Validate(&req); err != nil {
		return req, err
	}
	return req, nil
}

// issue creates an access/refresh pair and stores the refresh hash.
func (h *AuthHandler) issue(ctx context.Context, u userPart) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw goes back to the client only
	}, nil
}

// Register creates a user and returns a token pair immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	req, err := h.bindCredentials(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, errorBody("email already exists", "email_exists"))
		}
		logging.Error().Err(err).Msg("create user failed")
		return c.JSON(http.StatusInternalServerError, errorBody("create user failed", "internal"))
	}

	resp, err := h.issue(ctx, userPart{ID: uid, Email: req.Email})
	if err != nil {
		logging.Error().Err(err).Uint64("user_id", uid).Msg("issue tokens failed")
		return c.JSON(http.StatusInternalServerError, errorBody("issue tokens failed", "internal"))
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	req, err := h.bindCredentials(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, errorBody("invalid credentials", "unauthorized"))
		}
		logging.Error().Err(err).Msg("load user failed")
		return c.JSON(http.StatusInternalServerError, errorBody("query failed", "internal"))
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, errorBody("invalid credentials", "unauthorized"))
	}

	resp, err := h.issue(ctx, userPart{ID: u.ID, Email: u.Email})
	if err != nil {
		logging.Error().Err(err).Uint64("user_id", u.ID).Msg("issue tokens failed")
		return c.JSON(http.StatusInternalServerError, errorBody("issue tokens failed", "internal"))
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh validates a refresh token by hash, revokes it and issues a new
// pair (rotation).
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := requestContext(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, errorBody("invalid refresh token", "unauthorized"))
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		logging.Warn().Err(err).Uint64("user_id", userID).Msg("revoke rotated refresh token failed")
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, errorBody("invalid refresh token", "unauthorized"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("load user failed", "internal"))
	}

	resp, err := h.issue(ctx, userPart{ID: u.ID, Email: u.Email})
	if err != nil {
		logging.Error().Err(err).Uint64("user_id", u.ID).Msg("issue tokens failed")
		return c.JSON(http.StatusInternalServerError, errorBody("issue tokens failed", "internal"))
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the refresh token in the body, or every refresh token of
// the caller when the body carries none.  Protected by JWTAuth.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var req refreshReq
	_ = c.Bind(&req) // an empty or invalid body means "all sessions"
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := requestContext(c)
	defer cancel()

	if raw == "" {
		if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
			return c.JSON(http.StatusInternalServerError, errorBody("logout failed", "internal"))
		}
		return c.NoContent(http.StatusNoContent)
	}

	hash := utils.HashRefreshRaw(raw)
	owner, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil || owner != uid {
		return c.JSON(http.StatusUnauthorized, errorBody("invalid refresh token", "unauthorized"))
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody("logout failed", "internal"))
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return unauthorized(c)
		}
		return c.JSON(http.StatusInternalServerError, errorBody("load user failed", "internal"))
	}
	return c.JSON(http.StatusOK, userPart{ID: u.ID, Email: u.Email})
}

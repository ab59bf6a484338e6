package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movierama/internal/model"
)

// ReactionService is implemented by service.ReactionManager.
type ReactionService interface {
	AddReaction(ctx context.Context, movieID, userID uint64, kind model.ReactionKind) error
	RemoveReaction(ctx context.Context, movieID, userID uint64) error
	SwitchReaction(ctx context.Context, movieID, userID uint64) error
	GetReaction(ctx context.Context, movieID, userID uint64) (model.ReactionKind, bool, error)
}

// ReactionHandler exposes the reaction operations of the authenticated
// user on /v1/movies/:id/reactions.
type ReactionHandler struct {
	Reactions ReactionService
	Cache     CacheInvalidator // optional
}

func NewReactionHandler(r ReactionService, cache CacheInvalidator) *ReactionHandler {
	return &ReactionHandler{Reactions: r, Cache: cache}
}

type addReactionReq struct {
	Reaction string `json:"reaction" validate:"required,oneof=like hate LIKE HATE"`
}

// target reads the caller and the movie id shared by every reaction route.
// When ok is false the rejection has been written and the handler returns
// err as is.
func target(c echo.Context) (movieID, userID uint64, ok bool, err error) {
	userID, ok = currentUser(c)
	if !ok {
		return 0, 0, false, unauthorized(c)
	}
	movieID, ok = pathID(c, "id")
	if !ok {
		return 0, 0, false, badRequest(c, "invalid movie id")
	}
	return movieID, userID, true, nil
}

// Add handles POST /v1/movies/:id/reactions {"reaction":"like"|"hate"}.
func (h *ReactionHandler) Add(c echo.Context) error {
	movieID, userID, ok, err := target(c)
	if !ok {
		return err
	}
	var req addReactionReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err.Error())
	}
	kind, err := model.ParseReactionKind(req.Reaction)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Reactions.AddReaction(ctx, movieID, userID, kind); err != nil {
		return reactionError(c, err)
	}
	invalidateListings(ctx, h.Cache)
	return c.NoContent(http.StatusNoContent)
}

// Switch handles PUT /v1/movies/:id/reactions.
func (h *ReactionHandler) Switch(c echo.Context) error {
	movieID, userID, ok, err := target(c)
	if !ok {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Reactions.SwitchReaction(ctx, movieID, userID); err != nil {
		return reactionError(c, err)
	}
	invalidateListings(ctx, h.Cache)
	return c.NoContent(http.StatusNoContent)
}

// Remove handles DELETE /v1/movies/:id/reactions.
func (h *ReactionHandler) Remove(c echo.Context) error {
	movieID, userID, ok, err := target(c)
	if !ok {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Reactions.RemoveReaction(ctx, movieID, userID); err != nil {
		return reactionError(c, err)
	}
	invalidateListings(ctx, h.Cache)
	return c.NoContent(http.StatusNoContent)
}

// Mine handles GET /v1/movies/:id/reactions/me.  reaction is null when the
// caller has not reacted.
func (h *ReactionHandler) Mine(c echo.Context) error {
	movieID, userID, ok, err := target(c)
	if !ok {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	kind, has, err := h.Reactions.GetReaction(ctx, movieID, userID)
	if err != nil {
		return reactionError(c, err)
	}
	var reaction *string
	if has {
		s := kind.Verb()
		reaction = &s
	}
	return c.JSON(http.StatusOK, echo.Map{"movie_id": movieID, "reaction": reaction})
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movierama/internal/logging"
	"github.com/iliyamo/movierama/internal/model"
	"github.com/iliyamo/movierama/internal/repository"
)

// MovieCatalog is the movie listing and submission side of the store.
// repository.MovieRepo and memstore.Store implement it.
type MovieCatalog interface {
	Create(ctx context.Context, m *model.Movie) error
	GetByID(ctx context.Context, id uint64) (*model.Movie, error)
	List(ctx context.Context, p repository.ListParams) (repository.MoviePage, error)
	ListByPublisher(ctx context.Context, publisherID uint64, p repository.ListParams) (repository.MoviePage, error)
}

// CacheInvalidator drops cached listings after a write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// MovieHandler serves the movie listings and movie submission.
type MovieHandler struct {
	Movies MovieCatalog
	Cache  CacheInvalidator // optional
}

func NewMovieHandler(movies MovieCatalog, cache CacheInvalidator) *MovieHandler {
	return &MovieHandler{Movies: movies, Cache: cache}
}

type createMovieReq struct {
	Title       string `json:"title" validate:"notblank,max=100"`
	Description string `json:"description" validate:"notblank,max=400"`
}

type movieResp struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedBy uint64    `json:"published_by"`
	Likes       int64     `json:"likes"`
	Hates       int64     `json:"hates"`
	CreatedAt   time.Time `json:"created_at"`
}

type pageResp struct {
	Items []movieResp `json:"items"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
	Total int64       `json:"total"`
}

func toMovieResp(m *model.Movie) movieResp {
	return movieResp{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		PublishedBy: m.PublishedBy,
		Likes:       m.LikeCount,
		Hates:       m.HateCount,
		CreatedAt:   m.CreatedAt,
	}
}

func toPageResp(p repository.MoviePage) pageResp {
	out := pageResp{Items: make([]movieResp, 0, len(p.Items)), Page: p.Page, Size: p.Size, Total: p.Total}
	for i := range p.Items {
		out.Items = append(out.Items, toMovieResp(&p.Items[i]))
	}
	return out
}

// listParams reads ?page=&size=&sort=.  Missing or malformed numbers fall
// back to the defaults applied by ListParams.Normalize.
func listParams(c echo.Context) repository.ListParams {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	return repository.ListParams{Page: page, Size: size, Sort: c.QueryParam("sort")}.Normalize()
}

// List handles GET /v1/movies.
func (h *MovieHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.Movies.List(ctx, listParams(c))
	if err != nil {
		logging.Error().Err(err).Msg("list movies failed")
		return c.JSON(http.StatusInternalServerError, errorBody("list movies failed", "internal"))
	}
	return c.JSON(http.StatusOK, toPageResp(page))
}

// ListByUser handles GET /v1/users/:id/movies.
func (h *MovieHandler) ListByUser(c echo.Context) error {
	uid, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.Movies.ListByPublisher(ctx, uid, listParams(c))
	if err != nil {
		logging.Error().Err(err).Uint64("publisher_id", uid).Msg("list movies by user failed")
		return c.JSON(http.StatusInternalServerError, errorBody("list movies failed", "internal"))
	}
	return c.JSON(http.StatusOK, toPageResp(page))
}

// Get handles GET /v1/movies/:id.
func (h *MovieHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid movie id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	m, err := h.Movies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMovieNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("movie not found", "not_found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("load movie failed", "internal"))
	}
	return c.JSON(http.StatusOK, toMovieResp(m))
}

// Create handles POST /v1/movies.  The caller becomes the publisher.
func (h *MovieHandler) Create(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var req createMovieReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	m := &model.Movie{Title: req.Title, Description: req.Description, PublishedBy: uid}
	if err := h.Movies.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrMovieExists) {
			return c.JSON(http.StatusConflict, errorBody("movie already exists", "movie_exists"))
		}
		logging.Error().Err(err).Uint64("user_id", uid).Msg("create movie failed")
		return c.JSON(http.StatusInternalServerError, errorBody("create movie failed", "internal"))
	}
	logging.Info().Uint64("movie_id", m.ID).Uint64("user_id", uid).Msg("movie published")
	invalidateListings(ctx, h.Cache)
	return c.JSON(http.StatusCreated, toMovieResp(m))
}

func invalidateListings(ctx context.Context, cache CacheInvalidator) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		logging.Warn().Err(err).Msg("invalidate cached listings failed")
	}
}

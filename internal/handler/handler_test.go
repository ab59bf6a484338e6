package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/movierama/internal/config"
	"github.com/iliyamo/movierama/internal/handler"
	"github.com/iliyamo/movierama/internal/middleware"
	"github.com/iliyamo/movierama/internal/model"
	"github.com/iliyamo/movierama/internal/repository"
	"github.com/iliyamo/movierama/internal/repository/memstore"
	"github.com/iliyamo/movierama/internal/router"
	"github.com/iliyamo/movierama/internal/service"
	"github.com/iliyamo/movierama/internal/utils"
)

const secret = "test-secret"

// userStore and tokenStore are in-memory stand-ins for the MySQL repos.
type userStore struct {
	mu    sync.Mutex
	users []model.User
}

func (s *userStore) Create(_ context.Context, email, password string, cost int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return 0, repository.ErrEmailExists
		}
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	u := model.User{ID: uint64(len(s.users) + 1), Email: email, PasswordHash: hash, IsActive: true}
	s.users = append(s.users, u)
	return u.ID, nil
}

func (s *userStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

func (s *userStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

type tokenStore struct {
	mu     sync.Mutex
	owners map[string]uint64
}

func (s *tokenStore) StoreRefresh(_ context.Context, userID uint64, hash string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[hash] = userID
	return nil
}

func (s *tokenStore) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.owners[hash]
	if !ok {
		return 0, repository.ErrInvalidRefresh
	}
	return uid, nil
}

func (s *tokenStore) RevokeByHash(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners, hash)
	return nil
}

func (s *tokenStore) RevokeAllForUser(_ context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, uid := range s.owners {
		if uid == userID {
			delete(s.owners, h)
		}
	}
	return nil
}

type fixture struct {
	e      *echo.Echo
	store  *memstore.Store
	tokens *tokenStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	tokens := &tokenStore{owners: map[string]uint64{}}
	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 15, RefreshTTLDays: 1, BcryptCost: bcrypt.MinCost}
	cache := middleware.NewResponseCache(config.CacheConfig{}, nil)

	e := echo.New()
	e.Validator = handler.NewRequestValidator()
	movies := handler.NewMovieHandler(store, cache)
	reactions := handler.NewReactionHandler(service.NewReactionManager(store), cache)
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, &userStore{}, tokens), secret)
	router.RegisterPublic(e, movies, cache)
	router.RegisterMovies(e, movies, reactions, secret, middleware.NewTokenBucket(config.RateLimitConfig{}, nil))
	return &fixture{e: e, store: store, tokens: tokens}
}

func (f *fixture) do(t *testing.T, method, path string, userID uint64, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != 0 {
		at, err := utils.NewAccessToken(secret, userID, 5)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+at.Token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedMovie(t *testing.T, title string, publisher uint64) uint64 {
	t.Helper()
	m := &model.Movie{Title: title, Description: "about " + title, PublishedBy: publisher}
	require.NoError(t, f.store.Create(context.Background(), m))
	return m.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", 0, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", 0, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReactionEndpoints(t *testing.T) {
	const alice, bob, carol = 1, 2, 3
	f := newFixture(t)
	id := f.seedMovie(t, "Heat", alice)
	path := "/v1/movies/" + itoa(id) + "/reactions"

	rec := f.do(t, http.MethodPost, path, bob, `{"reaction":"like"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, path+"/me", bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "like", decode(t, rec)["reaction"])

	rec = f.do(t, http.MethodPost, path, bob, `{"reaction":"hate"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_reaction", decode(t, rec)["code"])

	rec = f.do(t, http.MethodPut, path, bob, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/movies/"+itoa(id), 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 0, body["likes"])
	assert.EqualValues(t, 1, body["hates"])

	rec = f.do(t, http.MethodPost, path, alice, `{"reaction":"like"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "self_reaction_forbidden", decode(t, rec)["code"])

	rec = f.do(t, http.MethodDelete, path, carol, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found: no reaction to remove", decode(t, rec)["error"])

	rec = f.do(t, http.MethodDelete, path, bob, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, path+"/me", bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["reaction"])
}

func TestReactionRequestValidation(t *testing.T) {
	f := newFixture(t)
	id := f.seedMovie(t, "Heat", 1)
	path := "/v1/movies/" + itoa(id) + "/reactions"

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, path, 0, `{"reaction":"like"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, path, 2, `{"reaction":"meh"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, path, 2, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/movies/abc/reactions", 2, `{"reaction":"like"}`).Code)

	rec := f.do(t, http.MethodPost, "/v1/movies/999/reactions", 2, `{"reaction":"hate"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["code"])
}

func TestCreateAndListMovies(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/movies", 1, `{"title":"Heat","description":"LA crime saga"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode(t, rec)["published_by"])

	rec = f.do(t, http.MethodPost, "/v1/movies", 2, `{"title":"Heat","description":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/movies", 2, `{"title":"   ","description":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "title is required", decode(t, rec)["error"])

	long := strings.Repeat("a", 101)
	rec = f.do(t, http.MethodPost, "/v1/movies", 2, `{"title":"`+long+`","description":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "title must be at most 100 characters", decode(t, rec)["error"])

	rec = f.do(t, http.MethodPost, "/v1/movies", 2, `{"title":"Ran","description":"Lear in feudal Japan"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	ranID := uint64(decode(t, rec)["id"].(float64))

	rec = f.do(t, http.MethodPost, "/v1/movies/"+itoa(ranID)+"/reactions", 1, `{"reaction":"LIKE"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/movies?sort=likes&size=1", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode(t, rec)
	assert.EqualValues(t, 2, page["total"])
	items := page["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Ran", items[0].(map[string]any)["title"])

	rec = f.do(t, http.MethodGet, "/v1/users/1/movies", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode(t, rec)
	assert.EqualValues(t, 1, page["total"])
	assert.EqualValues(t, repository.DefaultPageSize, page["size"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/movies/999", 0, "").Code)
}

func TestAuthFlow(t *testing.T) {
	f := newFixture(t)

	creds := `{"email":"Bob@Example.com","password":"hunter22!"}`
	rec := f.do(t, http.MethodPost, "/v1/auth/register", 0, creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "bob@example.com", user["email"])

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/v1/auth/register", 0, creds).Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodPost, "/v1/auth/register", 0, `{"email":"nope","password":"hunter22!"}`).Code)

	rec = f.do(t, http.MethodPost, "/v1/auth/login", 0, `{"email":"bob@example.com","password":"wrong-pass"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/auth/login", 0, creds)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	refresh := body["refresh"].(map[string]any)["token"].(string)

	rec = f.do(t, http.MethodPost, "/v1/auth/refresh", 0, `{"refresh_token":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decode(t, rec)["refresh"].(map[string]any)["token"].(string)
	assert.NotEqual(t, refresh, rotated)

	// the old token was revoked by the rotation
	rec = f.do(t, http.MethodPost, "/v1/auth/refresh", 0, `{"refresh_token":"`+refresh+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/me", 1, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob@example.com", decode(t, rec)["email"])

	rec = f.do(t, http.MethodPost, "/v1/auth/logout", 1, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.tokens.owners)
}

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }

package router // router wires handlers and middleware onto the Echo instance

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/movierama/internal/handler"
	"github.com/iliyamo/movierama/internal/middleware"
)

// RegisterRoutes registers the operational endpoints: the health probe and
// the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the session endpoints.  Register, login and
// refresh live under /v1/auth and need no token; logout and /v1/me need a
// valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
	auth.POST("/auth/logout", a.Logout)
}

// RegisterPublic registers the anonymous movie listings.  Responses go
// through the Redis response cache; writes elsewhere invalidate it.
func RegisterPublic(e *echo.Echo, m *handler.MovieHandler, cache *middleware.ResponseCache) {
	g := e.Group("/v1", cache.Middleware())
	g.GET("/movies", m.List)
	g.GET("/movies/:id", m.Get)
	g.GET("/users/:id/movies", m.ListByUser)
}

// RegisterMovies registers the authenticated write endpoints: publishing a
// movie and the reaction operations.  Both are rate limited per user and
// route.
func RegisterMovies(e *echo.Echo, m *handler.MovieHandler, r *handler.ReactionHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), limiter)
	g.POST("/movies", m.Create)

	g.POST("/movies/:id/reactions", r.Add)
	g.PUT("/movies/:id/reactions", r.Switch)
	g.DELETE("/movies/:id/reactions", r.Remove)
	g.GET("/movies/:id/reactions/me", r.Mine)
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movierama/internal/logging"
	"github.com/iliyamo/movierama/internal/middleware"
	"github.com/iliyamo/movierama/internal/service"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// errorBody is the shape of every error response: a human readable message
// and a stable machine readable code.
func errorBody(msg, code string) echo.Map {
	return echo.Map{"error": msg, "code": code}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody(msg, "bad_request"))
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorBody("unauthorized", "unauthorized"))
}

// currentUser returns the authenticated caller set by middleware.JWTAuth.
func currentUser(c echo.Context) (uint64, bool) {
	return middleware.UserID(c)
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// reactionError writes the response for an error returned by the reaction
// manager.  Status codes:
//
//	not found                  404
//	self reaction forbidden    403
//	duplicate reaction         409
//	concurrency conflict       409, retryable
//	invalid reaction           400
//	counter adjustment failed  500
func reactionError(c echo.Context, err error) error {
	kind := service.ErrorKind(err)
	status := http.StatusInternalServerError
	body := errorBody(err.Error(), kind)
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrSelfReactionForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrDuplicateReaction):
		status = http.StatusConflict
	case errors.Is(err, service.ErrConcurrencyConflict):
		status = http.StatusConflict
		body["retryable"] = true
	case errors.Is(err, service.ErrInvalidReaction):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrCounterAdjustmentFailed):
		// the reaction was stored; counters are repaired asynchronously
		body["error"] = "reaction saved but counters could not be updated"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		body["error"] = "request cancelled"
	default:
		body["error"] = "internal error"
	}
	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).Str("path", c.Path()).Msg("reaction request failed")
	}
	return c.JSON(status, body)
}

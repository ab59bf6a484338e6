package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/movierama/internal/handler"
	"github.com/iliyamo/movierama/internal/middleware"
	"github.com/iliyamo/movierama/internal/model"
)

// callCounter counts reaction operations that reach the service.
type callCounter struct{ calls int }

func (s *callCounter) AddReaction(context.Context, uint64, uint64, model.ReactionKind) error {
	s.calls++
	return nil
}

func (s *callCounter) RemoveReaction(context.Context, uint64, uint64) error {
	s.calls++
	return nil
}

func (s *callCounter) SwitchReaction(context.Context, uint64, uint64) error {
	s.calls++
	return nil
}

func (s *callCounter) GetReaction(context.Context, uint64, uint64) (model.ReactionKind, bool, error) {
	s.calls++
	return "", false, nil
}

func TestReactionHandlersRejectBeforeCallingService(t *testing.T) {
	svc := &callCounter{}
	h := handler.NewReactionHandler(svc, nil)
	e := echo.New()
	routes := map[string]echo.HandlerFunc{
		http.MethodPost:   h.Add,
		http.MethodPut:    h.Switch,
		http.MethodDelete: h.Remove,
		http.MethodGet:    h.Mine,
	}

	for method, handle := range routes {
		for _, tc := range []struct {
			name   string
			id     string
			user   uint64
			status int
		}{
			{"anonymous", "7", 0, http.StatusUnauthorized},
			{"zero id", "0", 2, http.StatusBadRequest},
			{"non numeric id", "abc", 2, http.StatusBadRequest},
		} {
			t.Run(method+" "+tc.name, func(t *testing.T) {
				req := httptest.NewRequest(method, "/v1/movies/"+tc.id+"/reactions", nil)
				rec := httptest.NewRecorder()
				c := e.NewContext(req, rec)
				c.SetParamNames("id")
				c.SetParamValues(tc.id)
				if tc.user != 0 {
					c.Set(middleware.ContextUserID, tc.user)
				}

				assert.NoError(t, handle(c))
				assert.Equal(t, tc.status, rec.Code)
			})
		}
	}
	assert.Zero(t, svc.calls)
}

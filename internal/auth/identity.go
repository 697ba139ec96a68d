// Package auth resolves the acting user for each request.
//
// Authentication itself is out of scope for this service: callers are
// trusted to convey the already-authenticated identity in the X-User-ID
// header (the surrounding platform terminates sessions). This package only
// verifies the id resolves to a known user and makes it available to
// handlers.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"approvalflow/backend/internal/repository"
	"approvalflow/backend/pkg/models"
)

// HeaderUserID is the request header carrying the acting user's id.
const HeaderUserID = "X-User-ID"

type contextKey string

const userKey contextKey = "acting_user"

// Identity is echo middleware that loads the acting user from the store
// and stashes it in the request context. Requests without a resolvable
// identity are rejected before reaching any handler.
func Identity(users repository.UserStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(HeaderUserID)
			if id == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderUserID+" header")
			}

			user, err := users.GetUser(c.Request().Context(), id)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
				}
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}

			ctx := context.WithValue(c.Request().Context(), userKey, user)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// UserFrom returns the acting user stored by the Identity middleware.
func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok
}

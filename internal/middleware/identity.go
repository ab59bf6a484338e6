package middleware

// identity.go holds the helper that reads the authenticated user back out of
// the Echo context.  JWTAuth stores the numeric subject under "user_id".

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// ContextUserID is the echo.Context key JWTAuth stores the user ID under.
const ContextUserID = "user_id"

// UserID returns the authenticated user's ID.  The second result is false
// for anonymous requests or when the stored value is not a usable ID.
func UserID(c echo.Context) (uint64, bool) {
	switch v := c.Get(ContextUserID).(type) {
	case uint64:
		return v, v != 0
	case float64:
		// numeric JWT claims decode as float64
		if v <= 0 {
			return 0, false
		}
		return uint64(v), true
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		return id, err == nil && id != 0
	}
	return 0, false
}

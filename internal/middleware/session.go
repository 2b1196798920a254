package middleware

// session.go authenticates room occupants.  Occupants are not JWT users:
// on join they receive an opaque session token whose SHA-256 hash is
// stored with the occupant row.  Each request presents the raw token in
// the X-Session-Token header; the middleware resolves it back to the
// occupant and refreshes its presence.

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/escrow-room-service/internal/repository"
)

// SessionHeader carries the occupant's raw session token.
const SessionHeader = "X-Session-Token"

// OccupantSession returns an Echo middleware that resolves the
// X-Session-Token header to an occupant and stores it in the context
// under "occupant".  Handlers access it via c.Get("occupant") as a
// *model.Occupant.  Presence is refreshed on every authenticated
// request.
func OccupantSession(occupants *repository.OccupantRepo) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := strings.TrimSpace(c.Request().Header.Get(SessionHeader))
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session token"})
			}
			sum := sha256.Sum256([]byte(raw))
			occ, err := occupants.GetBySessionHash(c.Request().Context(), hex.EncodeToString(sum[:]))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session token"})
			}
			// Best effort; a failed presence update never blocks the request.
			_ = occupants.TouchPresence(c.Request().Context(), occ.ID, true)
			c.Set("occupant", occ)
			return next(c)
		}
	}
}

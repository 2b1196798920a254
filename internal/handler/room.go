package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/escrow-room-service/internal/config"
	"github.com/iliyamo/escrow-room-service/internal/escrow"
	"github.com/iliyamo/escrow-room-service/internal/model"
	"github.com/iliyamo/escrow-room-service/internal/repository"
)

// RoomHandler serves room provisioning (arbiter), availability and join
// (public), and leave/heartbeat (occupant session).
type RoomHandler struct {
	Cfg       config.Config
	Rooms     *repository.RoomRepo
	Occupants *repository.OccupantRepo
	Audit     *repository.AuditRepo
	Arbiters  *repository.ArbiterRepo
	Manager   *escrow.OccupancyManager
}

func NewRoomHandler(cfg config.Config, rooms *repository.RoomRepo, occupants *repository.OccupantRepo,
	audit *repository.AuditRepo, arbiters *repository.ArbiterRepo, manager *escrow.OccupancyManager) *RoomHandler {
	return &RoomHandler{Cfg: cfg, Rooms: rooms, Occupants: occupants, Audit: audit, Arbiters: arbiters, Manager: manager}
}

// arbiterFromCtx resolves the authenticated arbiter from the JWT claims.
func (h *RoomHandler) arbiterFromCtx(c echo.Context) (model.Arbiter, error) {
	aid, err := getUserID(c)
	if err != nil {
		return model.Arbiter{}, err
	}
	return h.Arbiters.GetByID(c.Request().Context(), aid)
}

// CreateRoom handles POST /v1/rooms (arbiter).  The room starts FREE
// with an expiry derived from the configured TTL unless overridden.
func (h *RoomHandler) CreateRoom(c echo.Context) error {
	arbiter, err := h.arbiterFromCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		RoomNumber string `json:"room_number"`
		TTLHours   int    `json:"ttl_hours"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	number := strings.TrimSpace(body.RoomNumber)
	if number == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "room_number is required"})
	}
	ttl := body.TTLHours
	if ttl <= 0 {
		ttl = h.Cfg.RoomTTLHours
	}

	room := &model.Room{
		RoomNumber: number,
		ExpiresAt:  time.Now().UTC().Add(time.Duration(ttl) * time.Hour),
	}
	ctx := c.Request().Context()
	if err := h.Rooms.Create(ctx, room); err != nil {
		if err == repository.ErrDuplicate {
			return c.JSON(http.StatusConflict, echo.Map{"error": "room number already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create room"})
	}

	// First audit entry, sequenced under the fresh room's lock.
	tx, err := h.Rooms.DB().BeginTx(ctx, nil)
	if err == nil {
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback()
			}
		}()
		if _, err := h.Rooms.GetForUpdateTx(ctx, tx, room.ID); err == nil {
			entry := &model.AuditEntry{
				RoomID:      room.ID,
				Action:      model.ActionRoomCreated,
				ActorName:   arbiter.DisplayName,
				ActorRole:   model.ActorArbiter,
				Description: fmt.Sprintf("room %s provisioned, expires %s", room.RoomNumber, room.ExpiresAt.Format(time.RFC3339)),
			}
			if err := h.Audit.AppendTx(ctx, tx, entry); err == nil {
				if err := tx.Commit(); err == nil {
					committed = true
				}
			}
		}
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"id":          room.ID,
		"room_number": room.RoomNumber,
		"status":      room.Status,
		"expires_at":  room.ExpiresAt,
	})
}

// ListRooms handles GET /v1/rooms (arbiter) and returns every room with
// its slot occupancy.
func (h *RoomHandler) ListRooms(c echo.Context) error {
	ctx := c.Request().Context()
	rooms, err := h.Rooms.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	items := make([]echo.Map, 0, len(rooms))
	for i := range rooms {
		r := &rooms[i]
		occs, err := h.Occupants.ListByRoom(ctx, r.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
		}
		slots := make([]echo.Map, 0, len(occs))
		for _, o := range occs {
			slots = append(slots, echo.Map{
				"occupant_id":  o.ID,
				"role":         o.Role,
				"display_name": o.DisplayName,
				"is_online":    o.IsOnline,
				"joined_at":    o.JoinedAt,
			})
		}
		items = append(items, echo.Map{
			"id":          r.ID,
			"room_number": r.RoomNumber,
			"status":      r.Status,
			"expires_at":  r.ExpiresAt,
			"expired":     r.Expired(time.Now()),
			"occupants":   slots,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Availability handles GET /v1/rooms/:id/availability (public).
func (h *RoomHandler) Availability(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	av, err := h.Manager.RoomAvailability(c.Request().Context(), id)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, av)
}

// Join handles POST /v1/rooms/:id/join (public).  On success it returns
// the occupant together with the raw session token; the token is shown
// exactly once and only its hash is stored.
func (h *RoomHandler) Join(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var body struct {
		Role        string `json:"role"`
		DisplayName string `json:"display_name"`
		Contact     string `json:"contact"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	occ, token, err := h.Manager.Join(c.Request().Context(), escrow.JoinRequest{
		RoomID:      id,
		Role:        body.Role,
		DisplayName: body.DisplayName,
		Contact:     body.Contact,
	})
	if err != nil {
		if strings.Contains(err.Error(), "required") {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return domainError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"occupant_id":   occ.ID,
		"room_id":       occ.RoomID,
		"role":          occ.Role,
		"display_name":  occ.DisplayName,
		"session_token": token,
	})
}

// Leave handles POST /v1/session/leave (occupant).
func (h *RoomHandler) Leave(c echo.Context) error {
	occ, ok := occupantFromCtx(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.Manager.Leave(c.Request().Context(), occ); err != nil {
		return domainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Heartbeat handles POST /v1/session/heartbeat (occupant).  Presence is
// already refreshed by the session middleware; the endpoint exists so
// idle clients have something cheap to call.
func (h *RoomHandler) Heartbeat(c echo.Context) error {
	occ, ok := occupantFromCtx(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"occupant_id": occ.ID,
		"room_id":     occ.RoomID,
		"role":        occ.Role,
		"is_online":   true,
	})
}

// ResetRoom handles POST /v1/rooms/:id/reset (arbiter).  Fails while
// the room still has an active transaction.
func (h *RoomHandler) ResetRoom(c echo.Context) error {
	arbiter, err := h.arbiterFromCtx(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	removed, err := h.Manager.Reset(c.Request().Context(), id, arbiter)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"removed_occupants": removed})
}

// ExtendRoom handles POST /v1/rooms/:id/extend (arbiter).
func (h *RoomHandler) ExtendRoom(c echo.Context) error {
	if _, err := h.arbiterFromCtx(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var body struct {
		Hours int `json:"hours"`
	}
	if err := c.Bind(&body); err != nil || body.Hours <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hours must be positive"})
	}
	until := time.Now().UTC().Add(time.Duration(body.Hours) * time.Hour)
	if err := h.Rooms.ExtendExpiry(c.Request().Context(), id, until); err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expires_at": until})
}

// AuditTrail handles GET /v1/rooms/:id/audit (arbiter) and returns the
// room's full history in commit order.
func (h *RoomHandler) AuditTrail(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	entries, err := h.Audit.ListByRoom(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	items := make([]echo.Map, 0, len(entries))
	for _, e := range entries {
		items = append(items, echo.Map{
			"seq":         e.Seq,
			"action":      e.Action,
			"actor_name":  e.ActorName,
			"actor_role":  e.ActorRole,
			"description": e.Description,
			"created_at":  e.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/escrow-room-service/internal/handler"    // room, evidence and transaction handlers
	"github.com/iliyamo/escrow-room-service/internal/middleware" // JWT, role and session middlewares
	"github.com/iliyamo/escrow-room-service/internal/model"
	"github.com/iliyamo/escrow-room-service/internal/repository"
)

// RegisterPublic registers the unauthenticated room endpoints: anyone
// holding a room link can inspect availability and claim a free slot.
func RegisterPublic(e *echo.Echo, r *handler.RoomHandler) {
	e.GET("/v1/rooms/:id/availability", r.Availability)
	e.POST("/v1/rooms/:id/join", r.Join)
}

// RegisterArbiter registers ARBITER-scoped endpoints under /v1.
// All routes require a valid JWT and ARBITER role.
func RegisterArbiter(e *echo.Echo, r *handler.RoomHandler, ev *handler.EvidenceHandler,
	t *handler.TransactionHandler, jwtSecret string) {
	// Attach middlewares at group construction time for clarity.
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.ActorArbiter),
	)

	// ---- Rooms ----
	g.POST("/rooms", r.CreateRoom)
	g.GET("/rooms", r.ListRooms)
	g.POST("/rooms/:id/reset", r.ResetRoom)
	g.POST("/rooms/:id/extend", r.ExtendRoom)
	g.GET("/rooms/:id/audit", r.AuditTrail)
	g.GET("/rooms/:id/status", t.RoomStatus)

	// ---- Evidence review ----
	g.GET("/rooms/:id/evidence/pending", ev.ListPending)
	g.POST("/evidence/:id/approve", ev.Approve)
	g.POST("/evidence/:id/reject", ev.Reject)
	g.GET("/evidence/:id/download", ev.Download)

	// ---- Transaction authority ----
	g.POST("/rooms/:id/release", t.ReleaseFunds)
	g.POST("/rooms/:id/cancel", t.Cancel)
	g.POST("/rooms/:id/dispute", t.Dispute)
}

// RegisterSession registers the occupant endpoints under /v1/session.
// Occupants authenticate with the opaque session token issued on join,
// not with JWTs.
func RegisterSession(e *echo.Echo, occupants *repository.OccupantRepo,
	r *handler.RoomHandler, ev *handler.EvidenceHandler, t *handler.TransactionHandler) {
	g := e.Group("/v1/session", middleware.OccupantSession(occupants))

	g.POST("/heartbeat", r.Heartbeat)
	g.POST("/leave", r.Leave)
	g.GET("/status", t.MyStatus)
	g.POST("/confirm-receipt", t.ConfirmReceipt)
	g.POST("/evidence", ev.Upload)
	g.GET("/evidence", ev.ListMine)
}

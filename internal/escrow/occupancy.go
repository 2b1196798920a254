package escrow

import (
    "context"
    "crypto/sha256"
    "encoding/hex"
    "errors"
    "fmt"
    "strings"

    "github.com/google/uuid"

    "github.com/iliyamo/escrow-room-service/internal/model"
    "github.com/iliyamo/escrow-room-service/internal/queue"
    "github.com/iliyamo/escrow-room-service/internal/repository"
)

// SlotStore is the storage contract the occupancy manager runs on.
// Every method that mutates is one atomic unit: precondition checks and
// writes commit together under the room's exclusive lock, with the
// (room, role) unique constraint as the final arbiter, and the audit
// entry in the same transaction.  Assign reports a lost constraint race
// as repository.ErrDuplicate.
type SlotStore interface {
    Assign(ctx context.Context, roomID uint64, occ *model.Occupant, entry *model.AuditEntry) error
    Release(ctx context.Context, roomID, occupantID uint64, entry *model.AuditEntry) (int, error)
    Reset(ctx context.Context, roomID uint64, entry *model.AuditEntry) (int, error)
    Room(ctx context.Context, roomID uint64) (*model.Room, error)
    Occupants(ctx context.Context, roomID uint64) ([]model.Occupant, error)
}

// OccupancyManager owns slot assignment and release for rooms.  It
// enforces single-occupant-per-role through the SlotStore's atomic
// units and resolves storage-level races: a join that loses the
// constraint race is retried exactly once (so a transient conflict
// against an already-departed occupant can still succeed) and then
// surfaced as ErrRoleUnavailable.
type OccupancyManager struct {
    store   SlotStore
    publish EventPublisher
}

// NewOccupancyManager constructs an OccupancyManager.  publish may be
// nil when no broker is configured.
func NewOccupancyManager(store SlotStore, publish EventPublisher) *OccupancyManager {
    return &OccupancyManager{store: store, publish: publish}
}

// JoinRequest carries the participant details for a join attempt.
type JoinRequest struct {
    RoomID      uint64
    Role        string
    DisplayName string
    Contact     string
}

// Join atomically assigns a slot and returns the created occupant
// together with the raw session token for subsequent authentication.
// Only the SHA-256 of the token is ever stored.
func (m *OccupancyManager) Join(ctx context.Context, req JoinRequest) (*model.Occupant, string, error) {
    role := strings.ToUpper(strings.TrimSpace(req.Role))
    if !model.ValidRole(role) {
        return nil, "", model.ErrRoleUnavailable
    }
    name := strings.TrimSpace(req.DisplayName)
    contact := strings.TrimSpace(req.Contact)
    if name == "" || contact == "" {
        return nil, "", fmt.Errorf("display name and contact are required")
    }

    token := uuid.NewString()
    sum := sha256.Sum256([]byte(token))
    occ := &model.Occupant{
        Role:             role,
        DisplayName:      name,
        Contact:          contact,
        SessionTokenHash: hex.EncodeToString(sum[:]),
    }
    entry := &model.AuditEntry{
        RoomID:      req.RoomID,
        Action:      model.ActionSlotAssigned,
        ActorName:   name,
        ActorRole:   role,
        Description: fmt.Sprintf("%s joined as %s", name, strings.ToLower(role)),
    }

    err := m.store.Assign(ctx, req.RoomID, occ, entry)
    if errors.Is(err, repository.ErrDuplicate) {
        // Lost the unique-key race. One retry: the precondition check now
        // sees the winner and reports the slot as taken, unless the
        // conflicting row is already gone again.
        err = m.store.Assign(ctx, req.RoomID, occ, entry)
        if errors.Is(err, repository.ErrDuplicate) {
            err = model.ErrRoleUnavailable
        }
    }
    if err != nil {
        return nil, "", err
    }

    emit(ctx, m.publish, queue.RoomEvent{
        Event:     queue.EventSlotAssigned,
        RoomID:    req.RoomID,
        ActorName: name,
        ActorRole: role,
    })
    return occ, token, nil
}

// Leave removes the occupant from its room.  The room returns to FREE
// when the last occupant leaves.
func (m *OccupancyManager) Leave(ctx context.Context, occ *model.Occupant) error {
    entry := &model.AuditEntry{
        RoomID:      occ.RoomID,
        Action:      model.ActionSlotReleased,
        ActorName:   occ.DisplayName,
        ActorRole:   occ.Role,
        Description: fmt.Sprintf("%s left the %s slot", occ.DisplayName, strings.ToLower(occ.Role)),
    }
    if _, err := m.store.Release(ctx, occ.RoomID, occ.ID, entry); err != nil {
        return err
    }
    emit(ctx, m.publish, queue.RoomEvent{
        Event:     queue.EventSlotReleased,
        RoomID:    occ.RoomID,
        ActorName: occ.DisplayName,
        ActorRole: occ.Role,
    })
    return nil
}

// Reset clears both slots of a room by arbiter action.  Fails with
// model.ErrActiveTransaction while an escrow transaction is still
// running.
func (m *OccupancyManager) Reset(ctx context.Context, roomID uint64, arbiter model.Arbiter) (int, error) {
    entry := &model.AuditEntry{
        RoomID:      roomID,
        Action:      model.ActionRoomReset,
        ActorName:   arbiter.DisplayName,
        ActorRole:   model.ActorArbiter,
        Description: "room reset, all slots cleared",
    }
    removed, err := m.store.Reset(ctx, roomID, entry)
    if err != nil {
        return 0, err
    }
    emit(ctx, m.publish, queue.RoomEvent{
        Event:     queue.EventRoomReset,
        RoomID:    roomID,
        ActorName: arbiter.DisplayName,
        ActorRole: model.ActorArbiter,
    })
    return removed, nil
}

// Availability describes the joinable state of a room.  It is a pure
// read for presentation layers and must never be the sole gate for a
// mutating operation; Join re-checks everything under the room lock.
type Availability struct {
    RoomID      uint64 `json:"room_id"`
    RoomNumber  string `json:"room_number"`
    Status      string `json:"status"`
    BuyerTaken  bool   `json:"buyer_taken"`
    SellerTaken bool   `json:"seller_taken"`
    Expired     bool   `json:"expired"`
}

// IsAvailable reports whether the given role could currently join the
// room.  Advisory only.
func (m *OccupancyManager) IsAvailable(ctx context.Context, roomID uint64, role string) (bool, error) {
    occs, err := m.store.Occupants(ctx, roomID)
    if err != nil {
        return false, err
    }
    return model.CanAssign(occs, strings.ToUpper(strings.TrimSpace(role)), "") == nil, nil
}

// RoomAvailability assembles the advisory view of a room.
func (m *OccupancyManager) RoomAvailability(ctx context.Context, roomID uint64) (*Availability, error) {
    room, err := m.store.Room(ctx, roomID)
    if err != nil {
        return nil, err
    }
    occs, err := m.store.Occupants(ctx, roomID)
    if err != nil {
        return nil, err
    }
    av := &Availability{
        RoomID:     room.ID,
        RoomNumber: room.RoomNumber,
        Status:     room.Status,
        Expired:    room.Expired(timeNow()),
    }
    for _, o := range occs {
        switch o.Role {
        case model.RoleBuyer:
            av.BuyerTaken = true
        case model.RoleSeller:
            av.SellerTaken = true
        }
    }
    return av, nil
}

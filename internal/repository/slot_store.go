package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/escrow-room-service/internal/model"
)

// SlotStore bundles the room, occupant and audit repositories into the
// atomic units consumed by the occupancy manager.  Each method is one
// transaction: the room row is locked first, the precondition check and
// the write commit together or not at all, and the audit entry rides in
// the same transaction so the trail stays in commit order.
//
// Two independent mechanisms serialize concurrent joins: the exclusive
// room-row lock held across the check-and-insert, and the
// (room_id, role) unique key which turns any residual race into
// ErrDuplicate for exactly one of the contenders.
type SlotStore struct {
    db        *sql.DB
    rooms     *RoomRepo
    occupants *OccupantRepo
    audit     *AuditRepo
}

// NewSlotStore returns a SlotStore over the given repositories.  All
// repositories must be bound to the same database handle.
func NewSlotStore(db *sql.DB, rooms *RoomRepo, occupants *OccupantRepo, audit *AuditRepo) *SlotStore {
    return &SlotStore{db: db, rooms: rooms, occupants: occupants, audit: audit}
}

// Assign fills one slot of a room.  Preconditions (room not expired,
// role sequencing, no duplicate participant) are evaluated under the
// room row lock and committed together with the insert and the status
// flip to IN_USE.  Returns the model guard errors, ErrDuplicate on a
// lost race, or ErrRoomNotFound.
func (s *SlotStore) Assign(ctx context.Context, roomID uint64, occ *model.Occupant, entry *model.AuditEntry) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    room, err := s.rooms.GetForUpdateTx(ctx, tx, roomID)
    if err != nil {
        return err
    }
    if room.Expired(time.Now()) {
        return model.ErrRoomExpired
    }
    existing, err := s.occupants.ListByRoomTx(ctx, tx, roomID)
    if err != nil {
        return err
    }
    if err := model.CanAssign(existing, occ.Role, occ.Contact); err != nil {
        return err
    }
    elsewhere, err := s.occupants.ExistsByContactElsewhereTx(ctx, tx, occ.Contact, roomID)
    if err != nil {
        return err
    }
    if elsewhere {
        return model.ErrAlreadyOccupying
    }
    occ.RoomID = roomID
    if err := s.occupants.InsertTx(ctx, tx, occ); err != nil {
        return err
    }
    if room.Status == model.RoomStatusFree {
        if err := s.rooms.SetStatusTx(ctx, tx, roomID, model.RoomStatusInUse); err != nil {
            return err
        }
    }
    if err := s.audit.AppendTx(ctx, tx, entry); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// Release removes one occupant and resets the room to FREE when the
// last slot empties.  Returns the number of occupants remaining.
func (s *SlotStore) Release(ctx context.Context, roomID, occupantID uint64, entry *model.AuditEntry) (int, error) {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return 0, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    if _, err := s.rooms.GetForUpdateTx(ctx, tx, roomID); err != nil {
        return 0, err
    }
    remaining, err := s.occupants.DeleteTx(ctx, tx, roomID, occupantID)
    if err != nil {
        return 0, err
    }
    if remaining == 0 {
        if err := s.rooms.SetStatusTx(ctx, tx, roomID, model.RoomStatusFree); err != nil {
            return 0, err
        }
    }
    if err := s.audit.AppendTx(ctx, tx, entry); err != nil {
        return 0, err
    }
    if err := tx.Commit(); err != nil {
        return 0, err
    }
    committed = true
    return remaining, nil
}

// Reset clears every slot of a room (arbiter action) and returns the
// number of occupants removed.  A room with an active transaction
// cannot be reset; the transaction must be cancelled first, so the
// buyer/seller attribution on it stays resolvable.
func (s *SlotStore) Reset(ctx context.Context, roomID uint64, entry *model.AuditEntry) (int, error) {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return 0, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    if _, err := s.rooms.GetForUpdateTx(ctx, tx, roomID); err != nil {
        return 0, err
    }
    var one int
    err = tx.QueryRowContext(ctx,
        `SELECT 1 FROM escrow_transactions WHERE room_id = ? AND active = 1 LIMIT 1`, roomID).Scan(&one)
    if err == nil {
        return 0, model.ErrActiveTransaction
    }
    if err != sql.ErrNoRows {
        return 0, err
    }
    removed, err := s.occupants.DeleteAllTx(ctx, tx, roomID)
    if err != nil {
        return 0, err
    }
    if err := s.rooms.SetStatusTx(ctx, tx, roomID, model.RoomStatusFree); err != nil {
        return 0, err
    }
    if err := s.audit.AppendTx(ctx, tx, entry); err != nil {
        return 0, err
    }
    if err := tx.Commit(); err != nil {
        return 0, err
    }
    committed = true
    return removed, nil
}

// Room loads a room outside any transaction.
func (s *SlotStore) Room(ctx context.Context, roomID uint64) (*model.Room, error) {
    return s.rooms.GetByID(ctx, roomID)
}

// Occupants lists a room's occupants outside any transaction.
func (s *SlotStore) Occupants(ctx context.Context, roomID uint64) ([]model.Occupant, error) {
    return s.occupants.ListByRoom(ctx, roomID)
}

package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/escrow-room-service/internal/model"
)

// RoomRepo provides CRUD operations for escrow rooms.  A room row is
// the serialization point for everything that happens inside the room:
// mutating operations lock it with SELECT ... FOR UPDATE so that slot
// assignment, lazy transaction creation and audit sequencing never
// interleave for the same room.
type RoomRepo struct {
    db *sql.DB
}

// NewRoomRepo returns a new RoomRepo bound to the given database.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions
// that span several repositories.
func (r *RoomRepo) DB() *sql.DB { return r.db }

// Create inserts a new room in FREE state and populates the generated
// ID and timestamps on the provided model.  A duplicate room number
// returns ErrDuplicate.
func (r *RoomRepo) Create(ctx context.Context, room *model.Room) error {
    const q = `INSERT INTO rooms (room_number, status, expires_at) VALUES (?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, room.RoomNumber, model.RoomStatusFree, room.ExpiresAt.UTC())
    if err != nil {
        if isDuplicateKey(err) {
            return ErrDuplicate
        }
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    room.ID = uint64(id)
    room.Status = model.RoomStatusFree
    const sel = `SELECT created_at, updated_at FROM rooms WHERE id = ?`
    return r.db.QueryRowContext(ctx, sel, room.ID).Scan(&room.CreatedAt, &room.UpdatedAt)
}

// GetByID loads a room outside any transaction.  Returns
// ErrRoomNotFound when the id does not exist.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (*model.Room, error) {
    return r.get(ctx, r.db.QueryRowContext(ctx,
        `SELECT id, room_number, status, expires_at, created_at, updated_at FROM rooms WHERE id = ?`, id))
}

// GetForUpdateTx loads a room within the given transaction holding an
// exclusive row lock until the transaction ends.  Every mutating
// operation against a room takes this lock first.
func (r *RoomRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Room, error) {
    return r.get(ctx, tx.QueryRowContext(ctx,
        `SELECT id, room_number, status, expires_at, created_at, updated_at FROM rooms WHERE id = ? FOR UPDATE`, id))
}

func (r *RoomRepo) get(ctx context.Context, row *sql.Row) (*model.Room, error) {
    var m model.Room
    err := row.Scan(&m.ID, &m.RoomNumber, &m.Status, &m.ExpiresAt, &m.CreatedAt, &m.UpdatedAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrRoomNotFound
        }
        return nil, err
    }
    return &m, nil
}

// SetStatusTx updates the room status within the provided transaction.
// The caller must hold the row lock via GetForUpdateTx.
func (r *RoomRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, roomID uint64, status string) error {
    _, err := tx.ExecContext(ctx, `UPDATE rooms SET status = ? WHERE id = ?`, status, roomID)
    return err
}

// List returns all rooms ordered by room number.  Used by the arbiter
// overview; availability details come from the occupant repository.
func (r *RoomRepo) List(ctx context.Context) ([]model.Room, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, room_number, status, expires_at, created_at, updated_at FROM rooms ORDER BY room_number`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Room, 0)
    for rows.Next() {
        var m model.Room
        if err := rows.Scan(&m.ID, &m.RoomNumber, &m.Status, &m.ExpiresAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
            return nil, err
        }
        out = append(out, m)
    }
    return out, rows.Err()
}

// ExtendExpiry pushes the expiry of a room forward.  Arbiter action.
func (r *RoomRepo) ExtendExpiry(ctx context.Context, roomID uint64, until time.Time) error {
    res, err := r.db.ExecContext(ctx, `UPDATE rooms SET expires_at = ? WHERE id = ?`, until.UTC(), roomID)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err == nil && n == 0 {
        return ErrRoomNotFound
    }
    return err
}

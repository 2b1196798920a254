package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/escrow-room-service/internal/model"
)

// OccupantRepo provides data access to the room_occupants table.  The
// table carries a unique key over (room_id, role), the storage-level
// guarantee behind slot exclusivity, and a unique key on the session
// token hash.  All timestamp fields are stored in UTC.
type OccupantRepo struct {
    db *sql.DB
}

// NewOccupantRepo returns a new OccupantRepo bound to the provided database.
func NewOccupantRepo(db *sql.DB) *OccupantRepo { return &OccupantRepo{db: db} }

const occupantCols = `id, room_id, role, display_name, contact, session_token_hash, is_online, joined_at, last_seen_at`

func scanOccupant(row interface{ Scan(...any) error }) (*model.Occupant, error) {
    var o model.Occupant
    err := row.Scan(&o.ID, &o.RoomID, &o.Role, &o.DisplayName, &o.Contact,
        &o.SessionTokenHash, &o.IsOnline, &o.JoinedAt, &o.LastSeenAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrOccupantNotFound
        }
        return nil, err
    }
    return &o, nil
}

// InsertTx inserts an occupant within the caller's transaction and
// populates the generated ID and timestamps.  A collision on the
// (room_id, role) key, the lost-race case, returns ErrDuplicate.
func (r *OccupantRepo) InsertTx(ctx context.Context, tx *sql.Tx, o *model.Occupant) error {
    const q = `INSERT INTO room_occupants (room_id, role, display_name, contact, session_token_hash, is_online)
               VALUES (?, ?, ?, ?, ?, 1)`
    res, err := tx.ExecContext(ctx, q, o.RoomID, o.Role, o.DisplayName, o.Contact, o.SessionTokenHash)
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
    o.ID = uint64(id)
    o.IsOnline = true
    const sel = `SELECT joined_at, last_seen_at FROM room_occupants WHERE id = ?`
    return tx.QueryRowContext(ctx, sel, o.ID).Scan(&o.JoinedAt, &o.LastSeenAt)
}

// ListByRoomTx returns all occupants of a room within the caller's
// transaction.  Callers serialize against concurrent joins by locking
// the room row first, so no FOR UPDATE is needed here.
func (r *OccupantRepo) ListByRoomTx(ctx context.Context, tx *sql.Tx, roomID uint64) ([]model.Occupant, error) {
    rows, err := tx.QueryContext(ctx,
        `SELECT `+occupantCols+` FROM room_occupants WHERE room_id = ? ORDER BY role`, roomID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Occupant, 0, 2)
    for rows.Next() {
        o, err := scanOccupant(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *o)
    }
    return out, rows.Err()
}

// ListByRoom is the plain-read variant of ListByRoomTx, used by
// availability endpoints.  It must never be the sole gate for a
// mutating operation.
func (r *OccupantRepo) ListByRoom(ctx context.Context, roomID uint64) ([]model.Occupant, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+occupantCols+` FROM room_occupants WHERE room_id = ? ORDER BY role`, roomID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Occupant, 0, 2)
    for rows.Next() {
        o, err := scanOccupant(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *o)
    }
    return out, rows.Err()
}

// ExistsByContactElsewhereTx reports whether the contact already holds a
// slot in any room other than roomID.  Evaluated inside the join
// transaction so the answer cannot go stale before commit.
func (r *OccupantRepo) ExistsByContactElsewhereTx(ctx context.Context, tx *sql.Tx, contact string, roomID uint64) (bool, error) {
    var one int
    err := tx.QueryRowContext(ctx,
        `SELECT 1 FROM room_occupants WHERE contact = ? AND room_id <> ? LIMIT 1`, contact, roomID).Scan(&one)
    if errors.Is(err, sql.ErrNoRows) {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return true, nil
}

// DeleteTx removes one occupant within the caller's transaction and
// returns the number of occupants remaining in the room.
func (r *OccupantRepo) DeleteTx(ctx context.Context, tx *sql.Tx, roomID, occupantID uint64) (int, error) {
    res, err := tx.ExecContext(ctx,
        `DELETE FROM room_occupants WHERE id = ? AND room_id = ?`, occupantID, roomID)
    if err != nil {
        return 0, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return 0, err
    }
    if n == 0 {
        return 0, ErrOccupantNotFound
    }
    var remaining int
    err = tx.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM room_occupants WHERE room_id = ?`, roomID).Scan(&remaining)
    return remaining, err
}

// DeleteAllTx removes every occupant of a room (arbiter reset) and
// returns how many were removed.
func (r *OccupantRepo) DeleteAllTx(ctx context.Context, tx *sql.Tx, roomID uint64) (int, error) {
    res, err := tx.ExecContext(ctx, `DELETE FROM room_occupants WHERE room_id = ?`, roomID)
    if err != nil {
        return 0, err
    }
    n, err := res.RowsAffected()
    return int(n), err
}

// GetBySessionHash resolves an occupant from the SHA-256 hash of its
// session token.  Used by the occupant session middleware.
func (r *OccupantRepo) GetBySessionHash(ctx context.Context, hash string) (*model.Occupant, error) {
    return scanOccupant(r.db.QueryRowContext(ctx,
        `SELECT `+occupantCols+` FROM room_occupants WHERE session_token_hash = ?`, hash))
}

// GetByID loads a single occupant.
func (r *OccupantRepo) GetByID(ctx context.Context, id uint64) (*model.Occupant, error) {
    return scanOccupant(r.db.QueryRowContext(ctx,
        `SELECT `+occupantCols+` FROM room_occupants WHERE id = ?`, id))
}

// TouchPresence bumps last_seen_at and sets the online flag.  Presence
// is attribute-only; it needs no transaction discipline.
func (r *OccupantRepo) TouchPresence(ctx context.Context, id uint64, online bool) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE room_occupants SET is_online = ?, last_seen_at = UTC_TIMESTAMP() WHERE id = ?`, online, id)
    return err
}

package repository

import (
    "context"
    "database/sql"

    "github.com/iliyamo/escrow-room-service/internal/model"
)

// AuditRepo is the append-only sink for room audit entries.  Entries
// are inserted inside the same transaction as the operation they
// describe, with a per-room monotonic sequence assigned while the room
// row is locked, so commit order and sequence order agree.
// Nothing in this repository updates or deletes.
type AuditRepo struct {
    db *sql.DB
}

// NewAuditRepo returns a new AuditRepo bound to the provided database.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// AppendTx assigns the next per-room sequence number and inserts the
// entry within the caller's transaction.  The caller must hold the
// room row lock; the (room_id, seq) unique key rejects any caller that
// does not.
func (r *AuditRepo) AppendTx(ctx context.Context, tx *sql.Tx, e *model.AuditEntry) error {
    err := tx.QueryRowContext(ctx,
        `SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_entries WHERE room_id = ?`, e.RoomID).Scan(&e.Seq)
    if err != nil {
        return err
    }
    const q = `INSERT INTO audit_entries (room_id, seq, action, actor_name, actor_role, description)
               VALUES (?, ?, ?, ?, ?, ?)`
    res, err := tx.ExecContext(ctx, q, e.RoomID, e.Seq, e.Action, e.ActorName, e.ActorRole, e.Description)
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
    e.ID = uint64(id)
    return tx.QueryRowContext(ctx,
        `SELECT created_at FROM audit_entries WHERE id = ?`, e.ID).Scan(&e.CreatedAt)
}

// ListByRoom returns the full audit trail of a room in commit order.
func (r *AuditRepo) ListByRoom(ctx context.Context, roomID uint64) ([]model.AuditEntry, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, room_id, seq, action, actor_name, actor_role, description, created_at
         FROM audit_entries WHERE room_id = ? ORDER BY seq`, roomID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.AuditEntry, 0)
    for rows.Next() {
        var e model.AuditEntry
        if err := rows.Scan(&e.ID, &e.RoomID, &e.Seq, &e.Action, &e.ActorName, &e.ActorRole,
            &e.Description, &e.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, e)
    }
    return out, rows.Err()
}

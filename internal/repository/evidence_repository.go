package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/escrow-room-service/internal/model"
)

// EvidenceRepo provides data access to the evidence_files table.  The
// unique key over (transaction_id, file_type, open), where open is 1
// for a PENDING row and NULL once processed, is the storage-level
// guarantee that at most one file per type is ever awaiting review.
type EvidenceRepo struct {
    db *sql.DB
}

// NewEvidenceRepo returns a new EvidenceRepo bound to the provided database.
func NewEvidenceRepo(db *sql.DB) *EvidenceRepo { return &EvidenceRepo{db: db} }

const evidenceCols = `id, transaction_id, file_type, file_name, blob_ref, size_bytes, mime_type,
    uploader_role, status, verified_by, verified_at, rejection_reason, created_at`

func scanEvidence(row interface{ Scan(...any) error }) (*model.EvidenceFile, error) {
    var (
        f      model.EvidenceFile
        verBy  sql.NullInt64
        verAt  sql.NullTime
        reason sql.NullString
    )
    err := row.Scan(&f.ID, &f.TransactionID, &f.FileType, &f.FileName, &f.BlobRef,
        &f.SizeBytes, &f.MimeType, &f.UploaderRole, &f.Status, &verBy, &verAt, &reason, &f.CreatedAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrEvidenceNotFound
        }
        return nil, err
    }
    if verBy.Valid {
        v := uint64(verBy.Int64)
        f.VerifiedBy = &v
    }
    if verAt.Valid {
        f.VerifiedAt = &verAt.Time
    }
    if reason.Valid {
        f.RejectReason = &reason.String
    }
    return &f, nil
}

// CreateTx inserts a PENDING evidence record within the caller's
// transaction.  A second pending file of the same type for the same
// transaction violates the (transaction_id, file_type, open) key and
// returns ErrDuplicate.
func (r *EvidenceRepo) CreateTx(ctx context.Context, tx *sql.Tx, f *model.EvidenceFile) error {
    const q = `INSERT INTO evidence_files
        (transaction_id, file_type, file_name, blob_ref, size_bytes, mime_type, uploader_role, status, open)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`
    res, err := tx.ExecContext(ctx, q, f.TransactionID, f.FileType, f.FileName, f.BlobRef,
        f.SizeBytes, f.MimeType, f.UploaderRole, model.EvidencePending)
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
    f.ID = uint64(id)
    f.Status = model.EvidencePending
    const sel = `SELECT created_at FROM evidence_files WHERE id = ?`
    return tx.QueryRowContext(ctx, sel, f.ID).Scan(&f.CreatedAt)
}

// GetForUpdateTx loads an evidence file with an exclusive row lock so
// that approve and reject cannot interleave on the same file.
func (r *EvidenceRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.EvidenceFile, error) {
    return scanEvidence(tx.QueryRowContext(ctx,
        `SELECT `+evidenceCols+` FROM evidence_files WHERE id = ? FOR UPDATE`, id))
}

// GetByID loads an evidence file outside any transaction.
func (r *EvidenceRepo) GetByID(ctx context.Context, id uint64) (*model.EvidenceFile, error) {
    return scanEvidence(r.db.QueryRowContext(ctx,
        `SELECT `+evidenceCols+` FROM evidence_files WHERE id = ?`, id))
}

// MarkVerifiedTx transitions a PENDING file to VERIFIED and clears the
// open flag, releasing the single-flight slot for that file type.  The
// WHERE clause re-checks the status so a processed record can never be
// re-verified regardless of what the caller loaded.
func (r *EvidenceRepo) MarkVerifiedTx(ctx context.Context, tx *sql.Tx, id, arbiterID uint64, at time.Time) error {
    res, err := tx.ExecContext(ctx,
        `UPDATE evidence_files SET status = ?, open = NULL, verified_by = ?, verified_at = ?
         WHERE id = ? AND status = ?`,
        model.EvidenceVerified, arbiterID, at.UTC(), id, model.EvidencePending)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err == nil && n == 0 {
        return ErrConflict
    }
    return err
}

// MarkRejectedTx transitions a PENDING file to REJECTED with the given
// reason, clearing the open flag so a replacement can be submitted.
func (r *EvidenceRepo) MarkRejectedTx(ctx context.Context, tx *sql.Tx, id, arbiterID uint64, reason string, at time.Time) error {
    res, err := tx.ExecContext(ctx,
        `UPDATE evidence_files SET status = ?, open = NULL, verified_by = ?, verified_at = ?, rejection_reason = ?
         WHERE id = ? AND status = ?`,
        model.EvidenceRejected, arbiterID, at.UTC(), reason, id, model.EvidencePending)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err == nil && n == 0 {
        return ErrConflict
    }
    return err
}

// ListByTransaction returns all evidence files of a transaction ordered
// by upload time.
func (r *EvidenceRepo) ListByTransaction(ctx context.Context, txnID uint64) ([]model.EvidenceFile, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+evidenceCols+` FROM evidence_files WHERE transaction_id = ? ORDER BY created_at, id`, txnID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.EvidenceFile, 0)
    for rows.Next() {
        f, err := scanEvidence(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *f)
    }
    return out, rows.Err()
}

// ListPendingByRoom returns the pending evidence files across the
// room's active transaction, newest first.  Used by the arbiter review
// queue.
func (r *EvidenceRepo) ListPendingByRoom(ctx context.Context, roomID uint64) ([]model.EvidenceFile, error) {
    const q = `SELECT e.id, e.transaction_id, e.file_type, e.file_name, e.blob_ref, e.size_bytes, e.mime_type,
                      e.uploader_role, e.status, e.verified_by, e.verified_at, e.rejection_reason, e.created_at
               FROM evidence_files e
               JOIN escrow_transactions t ON t.id = e.transaction_id
               WHERE t.room_id = ? AND t.active = 1 AND e.status = ?
               ORDER BY e.created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, roomID, model.EvidencePending)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.EvidenceFile, 0)
    for rows.Next() {
        f, err := scanEvidence(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *f)
    }
    return out, rows.Err()
}

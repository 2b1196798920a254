package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/escrow-room-service/internal/model"
)

// TransactionRepo provides CRUD operations for escrow transactions.
// The table carries a unique key over (room_id, active) where active is
// 1 for every non-terminal row and NULL once terminal; NULL values do
// not collide in MySQL unique indexes, so terminal rows accumulate
// while at most one active row can ever exist per room.
type TransactionRepo struct {
    db *sql.DB
}

// NewTransactionRepo returns a new TransactionRepo bound to the given database.
func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const txnCols = `id, room_id, buyer_occupant_id, seller_occupant_id, amount_cents, currency,
    commission_cents, fee_cents, total_cents, status,
    payment_rejection_reason, shipping_rejection_reason, arbiter_notes,
    payment_verified_by, payment_verified_at, shipping_verified_by, shipping_verified_at,
    receipt_confirmed_at, funds_released_by, funds_released_at, completed_at,
    created_at, updated_at`

func scanTxn(row interface{ Scan(...any) error }) (*model.Transaction, error) {
    var (
        t          model.Transaction
        sellerID   sql.NullInt64
        payReason  sql.NullString
        shipReason sql.NullString
        notes      sql.NullString
        payBy      sql.NullInt64
        payAt      sql.NullTime
        shipBy     sql.NullInt64
        shipAt     sql.NullTime
        receiptAt  sql.NullTime
        releasedBy sql.NullInt64
        releasedAt sql.NullTime
        doneAt     sql.NullTime
    )
    err := row.Scan(&t.ID, &t.RoomID, &t.BuyerOccupantID, &sellerID, &t.AmountCents, &t.Currency,
        &t.CommissionCents, &t.FeeCents, &t.TotalCents, &t.Status,
        &payReason, &shipReason, &notes,
        &payBy, &payAt, &shipBy, &shipAt,
        &receiptAt, &releasedBy, &releasedAt, &doneAt,
        &t.CreatedAt, &t.UpdatedAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrTxnNotFound
        }
        return nil, err
    }
    if sellerID.Valid {
        v := uint64(sellerID.Int64)
        t.SellerOccupantID = &v
    }
    if payReason.Valid {
        t.PaymentRejectionReason = &payReason.String
    }
    if shipReason.Valid {
        t.ShippingRejectionReason = &shipReason.String
    }
    if notes.Valid {
        t.ArbiterNotes = &notes.String
    }
    if payBy.Valid {
        v := uint64(payBy.Int64)
        t.PaymentVerifiedBy = &v
    }
    if payAt.Valid {
        t.PaymentVerifiedAt = &payAt.Time
    }
    if shipBy.Valid {
        v := uint64(shipBy.Int64)
        t.ShippingVerifiedBy = &v
    }
    if shipAt.Valid {
        t.ShippingVerifiedAt = &shipAt.Time
    }
    if receiptAt.Valid {
        t.ReceiptConfirmedAt = &receiptAt.Time
    }
    if releasedBy.Valid {
        v := uint64(releasedBy.Int64)
        t.FundsReleasedBy = &v
    }
    if releasedAt.Valid {
        t.FundsReleasedAt = &releasedAt.Time
    }
    if doneAt.Valid {
        t.CompletedAt = &doneAt.Time
    }
    return &t, nil
}

// CreateTx inserts a new active transaction within the caller's
// transaction and populates the generated ID and timestamps.  A second
// active transaction for the same room violates the (room_id, active)
// key and returns ErrDuplicate.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
    const q = `INSERT INTO escrow_transactions
        (room_id, buyer_occupant_id, seller_occupant_id, amount_cents, currency,
         commission_cents, fee_cents, total_cents, status, active)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
    res, err := tx.ExecContext(ctx, q, t.RoomID, t.BuyerOccupantID, t.SellerOccupantID,
        t.AmountCents, t.Currency, t.CommissionCents, t.FeeCents, t.TotalCents, t.Status)
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
    t.ID = uint64(id)
    const sel = `SELECT created_at, updated_at FROM escrow_transactions WHERE id = ?`
    return tx.QueryRowContext(ctx, sel, t.ID).Scan(&t.CreatedAt, &t.UpdatedAt)
}

// GetActiveByRoomForUpdateTx loads the room's single active transaction
// with an exclusive row lock.  Every state machine operation goes
// through this method so reads-then-writes on the status field observe
// no interleaving.  Returns ErrTxnNotFound when the room has no active
// transaction.
func (r *TransactionRepo) GetActiveByRoomForUpdateTx(ctx context.Context, tx *sql.Tx, roomID uint64) (*model.Transaction, error) {
    return scanTxn(tx.QueryRowContext(ctx,
        `SELECT `+txnCols+` FROM escrow_transactions WHERE room_id = ? AND active = 1 FOR UPDATE`, roomID))
}

// GetByIDForUpdateTx loads a transaction by primary key with an
// exclusive row lock.  Callers lock the owning room row first so lock
// acquisition order is identical on every code path.
func (r *TransactionRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Transaction, error) {
    return scanTxn(tx.QueryRowContext(ctx,
        `SELECT `+txnCols+` FROM escrow_transactions WHERE id = ? FOR UPDATE`, id))
}

// GetActiveByRoom is the plain-read variant used by status endpoints.
func (r *TransactionRepo) GetActiveByRoom(ctx context.Context, roomID uint64) (*model.Transaction, error) {
    return scanTxn(r.db.QueryRowContext(ctx,
        `SELECT `+txnCols+` FROM escrow_transactions WHERE room_id = ? AND active = 1`, roomID))
}

// HasActiveByRoomTx reports whether the room has a non-terminal
// transaction, inside the caller's transaction.
func (r *TransactionRepo) HasActiveByRoomTx(ctx context.Context, tx *sql.Tx, roomID uint64) (bool, error) {
    var one int
    err := tx.QueryRowContext(ctx,
        `SELECT 1 FROM escrow_transactions WHERE room_id = ? AND active = 1 LIMIT 1`, roomID).Scan(&one)
    if errors.Is(err, sql.ErrNoRows) {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return true, nil
}

// GetByID loads a transaction by primary key, active or terminal.
func (r *TransactionRepo) GetByID(ctx context.Context, id uint64) (*model.Transaction, error) {
    return scanTxn(r.db.QueryRowContext(ctx,
        `SELECT `+txnCols+` FROM escrow_transactions WHERE id = ?`, id))
}

// UpdateTx persists the mutable portion of a transaction within the
// caller's transaction.  The active column is derived from the status:
// 1 while non-terminal, NULL once terminal, keeping the uniqueness
// invariant in lockstep with the state machine.
func (r *TransactionRepo) UpdateTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
    var active sql.NullInt64
    if t.Active() {
        active = sql.NullInt64{Int64: 1, Valid: true}
    }
    const q = `UPDATE escrow_transactions SET
        seller_occupant_id = ?, amount_cents = ?, currency = ?,
        commission_cents = ?, fee_cents = ?, total_cents = ?,
        status = ?, active = ?,
        payment_rejection_reason = ?, shipping_rejection_reason = ?, arbiter_notes = ?,
        payment_verified_by = ?, payment_verified_at = ?,
        shipping_verified_by = ?, shipping_verified_at = ?,
        receipt_confirmed_at = ?, funds_released_by = ?, funds_released_at = ?, completed_at = ?
        WHERE id = ?`
    _, err := tx.ExecContext(ctx, q,
        t.SellerOccupantID, t.AmountCents, t.Currency,
        t.CommissionCents, t.FeeCents, t.TotalCents,
        t.Status, active,
        t.PaymentRejectionReason, t.ShippingRejectionReason, t.ArbiterNotes,
        t.PaymentVerifiedBy, t.PaymentVerifiedAt,
        t.ShippingVerifiedBy, t.ShippingVerifiedAt,
        t.ReceiptConfirmedAt, t.FundsReleasedBy, t.FundsReleasedAt, t.CompletedAt,
        t.ID)
    return err
}

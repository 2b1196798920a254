package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/escrow-room-service/internal/model"
)

// EscrowStore bundles the room, occupant, transaction, evidence and
// audit repositories into the atomic units consumed by the lifecycle
// service and the evidence gateway.  Each method is one database
// transaction, with locks acquired in the fixed order room row, then
// transaction row, then evidence row, and the audit entry riding in
// the same transaction so the trail stays in commit order.
type EscrowStore struct {
	db        *sql.DB
	rooms     *RoomRepo
	occupants *OccupantRepo
	txns      *TransactionRepo
	evidence  *EvidenceRepo
	audit     *AuditRepo
}

// NewEscrowStore returns an EscrowStore over the given repositories.
// All repositories must be bound to the same database handle.
func NewEscrowStore(db *sql.DB, rooms *RoomRepo, occupants *OccupantRepo,
	txns *TransactionRepo, evidence *EvidenceRepo, audit *AuditRepo) *EscrowStore {
	return &EscrowStore{db: db, rooms: rooms, occupants: occupants,
		txns: txns, evidence: evidence, audit: audit}
}

// Transition runs one state machine operation over the room's active
// transaction.  The mutate callback applies the pure transition and
// returns the audit entry describing it; a callback error rolls the
// unit back untouched.  Propagates ErrTxnNotFound for a room with no
// active transaction.
func (s *EscrowStore) Transition(ctx context.Context, roomID uint64,
	mutate func(*model.Transaction) (*model.AuditEntry, error)) (*model.Transaction, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := s.rooms.GetForUpdateTx(ctx, tx, roomID); err != nil {
		return nil, err
	}
	txn, err := s.txns.GetActiveByRoomForUpdateTx(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	entry, err := mutate(txn)
	if err != nil {
		return nil, err
	}
	if err := s.txns.UpdateTx(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := s.audit.AppendTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return txn, nil
}

// ActiveByRoom loads the room's active transaction outside any
// transaction.
func (s *EscrowStore) ActiveByRoom(ctx context.Context, roomID uint64) (*model.Transaction, error) {
	return s.txns.GetActiveByRoom(ctx, roomID)
}

// Submit persists one evidence submission.  The room's active
// transaction is loaded under the room lock, or built by create from
// the room's occupants when absent; mutate then applies the upload
// transition and returns the file and audit entry to persist.  A
// second pending file of the same type violates the
// (transaction_id, file_type, open) key and returns ErrDuplicate.
func (s *EscrowStore) Submit(ctx context.Context, roomID uint64,
	create func(occupants []model.Occupant) (*model.Transaction, error),
	mutate func(txn *model.Transaction) (*model.EvidenceFile, *model.AuditEntry, error),
) (*model.EvidenceFile, *model.Transaction, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := s.rooms.GetForUpdateTx(ctx, tx, roomID); err != nil {
		return nil, nil, err
	}
	txn, err := s.txns.GetActiveByRoomForUpdateTx(ctx, tx, roomID)
	if errors.Is(err, ErrTxnNotFound) {
		occs, lerr := s.occupants.ListByRoomTx(ctx, tx, roomID)
		if lerr != nil {
			return nil, nil, lerr
		}
		txn, err = create(occs)
		if err != nil {
			return nil, nil, err
		}
		txn.RoomID = roomID
		if err := s.txns.CreateTx(ctx, tx, txn); err != nil {
			return nil, nil, err
		}
	} else if err != nil {
		return nil, nil, err
	}

	file, entry, err := mutate(txn)
	if err != nil {
		return nil, nil, err
	}
	file.TransactionID = txn.ID
	if err := s.evidence.CreateTx(ctx, tx, file); err != nil {
		return nil, nil, err
	}
	if err := s.txns.UpdateTx(ctx, tx, txn); err != nil {
		return nil, nil, err
	}
	if err := s.audit.AppendTx(ctx, tx, entry); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	committed = true
	return file, txn, nil
}

// Review persists one review decision over a pending evidence file.
// The owning transaction and room are resolved before any lock is
// taken so every path acquires locks in the same order; decide then
// runs against the locked rows and the persisted outcome is read from
// the file's status and attribution fields.  The UPDATE re-checks
// status = PENDING, so a record processed by a concurrent reviewer
// surfaces as ErrConflict rather than being overwritten.
func (s *EscrowStore) Review(ctx context.Context, fileID uint64,
	decide func(txn *model.Transaction, file *model.EvidenceFile) (*model.AuditEntry, error),
) (*model.EvidenceFile, *model.Transaction, error) {

	peek, err := s.evidence.GetByID(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	owner, err := s.txns.GetByID(ctx, peek.TransactionID)
	if err != nil {
		return nil, nil, err
	}
	roomID := owner.RoomID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := s.rooms.GetForUpdateTx(ctx, tx, roomID); err != nil {
		return nil, nil, err
	}
	txn, err := s.txns.GetByIDForUpdateTx(ctx, tx, peek.TransactionID)
	if err != nil {
		return nil, nil, err
	}
	file, err := s.evidence.GetForUpdateTx(ctx, tx, fileID)
	if err != nil {
		return nil, nil, err
	}

	entry, err := decide(txn, file)
	if err != nil {
		return nil, nil, err
	}
	switch file.Status {
	case model.EvidenceVerified:
		err = s.evidence.MarkVerifiedTx(ctx, tx, file.ID, *file.VerifiedBy, *file.VerifiedAt)
	case model.EvidenceRejected:
		err = s.evidence.MarkRejectedTx(ctx, tx, file.ID, *file.VerifiedBy, *file.RejectReason, *file.VerifiedAt)
	default:
		err = ErrConflict
	}
	if err != nil {
		return nil, nil, err
	}
	if err := s.txns.UpdateTx(ctx, tx, txn); err != nil {
		return nil, nil, err
	}
	if err := s.audit.AppendTx(ctx, tx, entry); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	committed = true
	return file, txn, nil
}

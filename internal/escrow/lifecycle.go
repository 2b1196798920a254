package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/escrow-room-service/internal/model"
	"github.com/iliyamo/escrow-room-service/internal/queue"
	"github.com/iliyamo/escrow-room-service/internal/repository"
)

// TransactionStore is the storage contract the lifecycle service runs
// on.  Transition is one atomic unit: lock the room row, lock the
// room's active transaction, run mutate, persist the transaction
// together with the audit entry mutate returns, commit.  A mutate
// error rolls the unit back untouched.  Transition reports a room
// without an active transaction as repository.ErrTxnNotFound.
// ActiveByRoom is a pure read.
type TransactionStore interface {
	Transition(ctx context.Context, roomID uint64, mutate func(*model.Transaction) (*model.AuditEntry, error)) (*model.Transaction, error)
	ActiveByRoom(ctx context.Context, roomID uint64) (*model.Transaction, error)
}

// LifecycleService owns the escrow transaction operations not driven
// by evidence review: buyer receipt confirmation, fund release,
// cancellation and dispute.  The pure transition rules live in
// internal/model; the store supplies the atomic unit they run in.
type LifecycleService struct {
	store   TransactionStore
	publish EventPublisher
}

// NewLifecycleService constructs a LifecycleService.  publish may be
// nil when no broker is configured.
func NewLifecycleService(store TransactionStore, publish EventPublisher) *LifecycleService {
	return &LifecycleService{store: store, publish: publish}
}

// transition wraps the store unit and maps the missing-transaction
// case to the domain error.
func (s *LifecycleService) transition(ctx context.Context, roomID uint64,
	apply func(*model.Transaction) error,
	buildEntry func(*model.Transaction) *model.AuditEntry) (*model.Transaction, error) {

	txn, err := s.store.Transition(ctx, roomID, func(t *model.Transaction) (*model.AuditEntry, error) {
		if err := apply(t); err != nil {
			return nil, err
		}
		return buildEntry(t), nil
	})
	if errors.Is(err, repository.ErrTxnNotFound) {
		return nil, model.ErrNoActiveTransaction
	}
	return txn, err
}

// ConfirmReceipt records the buyer's confirmation that the goods
// arrived.  Only the buyer occupant may call it and only from SHIPPED.
func (s *LifecycleService) ConfirmReceipt(ctx context.Context, roomID uint64, occ *model.Occupant, notes string) (*model.Transaction, error) {
	if occ.RoomID != roomID {
		return nil, repository.ErrForbidden
	}
	now := timeNow()
	txn, err := s.transition(ctx, roomID,
		func(t *model.Transaction) error { return t.ApplyReceipt(occ.ID, now) },
		func(t *model.Transaction) *model.AuditEntry {
			desc := fmt.Sprintf("%s confirmed receipt of goods", occ.DisplayName)
			if strings.TrimSpace(notes) != "" {
				desc += ": " + strings.TrimSpace(notes)
			}
			return &model.AuditEntry{
				RoomID:      roomID,
				Action:      model.ActionReceiptConfirmed,
				ActorName:   occ.DisplayName,
				ActorRole:   occ.Role,
				Description: desc,
			}
		})
	if err != nil {
		return nil, err
	}
	emit(ctx, s.publish, queue.RoomEvent{
		Event:         queue.EventReceiptConfirmed,
		RoomID:        roomID,
		TransactionID: txn.ID,
		Status:        txn.Status,
		ActorName:     occ.DisplayName,
		ActorRole:     occ.Role,
	})
	return txn, nil
}

// ReleaseFunds finalizes the transaction.  Legal only from
// GOODS_RECEIVED; the status guard makes a second call fail with
// ErrNotReadyForRelease, which is the double-release protection.
func (s *LifecycleService) ReleaseFunds(ctx context.Context, roomID uint64, arbiter model.Arbiter, notes string) (*model.Transaction, error) {
	now := timeNow()
	txn, err := s.transition(ctx, roomID,
		func(t *model.Transaction) error { return t.ApplyRelease(arbiter.ID, notes, now) },
		func(t *model.Transaction) *model.AuditEntry {
			return &model.AuditEntry{
				RoomID:    roomID,
				Action:    model.ActionFundsReleased,
				ActorName: arbiter.DisplayName,
				ActorRole: model.ActorArbiter,
				Description: fmt.Sprintf("funds released: %d %s to seller (amount %d, commission %d, fee %d)",
					t.TotalCents, t.Currency, t.AmountCents, t.CommissionCents, t.FeeCents),
			}
		})
	if err != nil {
		return nil, err
	}
	emit(ctx, s.publish, queue.RoomEvent{
		Event:         queue.EventFundsReleased,
		RoomID:        roomID,
		TransactionID: txn.ID,
		Status:        txn.Status,
		ActorName:     arbiter.DisplayName,
		ActorRole:     model.ActorArbiter,
	})
	return txn, nil
}

// Cancel terminates the active transaction by administrative action.
func (s *LifecycleService) Cancel(ctx context.Context, roomID uint64, arbiter model.Arbiter, reason string) (*model.Transaction, error) {
	now := timeNow()
	txn, err := s.transition(ctx, roomID,
		func(t *model.Transaction) error { return t.ApplyCancel(reason, now) },
		func(t *model.Transaction) *model.AuditEntry {
			return &model.AuditEntry{
				RoomID:      roomID,
				Action:      model.ActionTransactionCancelled,
				ActorName:   arbiter.DisplayName,
				ActorRole:   model.ActorArbiter,
				Description: "transaction cancelled: " + strings.TrimSpace(reason),
			}
		})
	if err != nil {
		return nil, err
	}
	emit(ctx, s.publish, queue.RoomEvent{
		Event:         queue.EventTransactionCancelled,
		RoomID:        roomID,
		TransactionID: txn.ID,
		Status:        txn.Status,
		ActorName:     arbiter.DisplayName,
		ActorRole:     model.ActorArbiter,
	})
	return txn, nil
}

// Dispute freezes the active transaction pending resolution.
func (s *LifecycleService) Dispute(ctx context.Context, roomID uint64, arbiter model.Arbiter, reason string) (*model.Transaction, error) {
	now := timeNow()
	txn, err := s.transition(ctx, roomID,
		func(t *model.Transaction) error { return t.ApplyDispute(reason, now) },
		func(t *model.Transaction) *model.AuditEntry {
			return &model.AuditEntry{
				RoomID:      roomID,
				Action:      model.ActionTransactionDisputed,
				ActorName:   arbiter.DisplayName,
				ActorRole:   model.ActorArbiter,
				Description: "transaction disputed: " + strings.TrimSpace(reason),
			}
		})
	if err != nil {
		return nil, err
	}
	emit(ctx, s.publish, queue.RoomEvent{
		Event:         queue.EventTransactionDisputed,
		RoomID:        roomID,
		TransactionID: txn.ID,
		Status:        txn.Status,
		ActorName:     arbiter.DisplayName,
		ActorRole:     model.ActorArbiter,
	})
	return txn, nil
}

// StatusView is the read model for presentation layers.
type StatusView struct {
	TransactionID      int64  `json:"transaction_id"`
	Status             string `json:"status"`
	ProgressPercentage int    `json:"progress_percentage"`
	CurrentAction      string `json:"current_action"`
	AmountCents        int64  `json:"amount_cents"`
	Currency           string `json:"currency"`
	CommissionCents    int64  `json:"commission_cents"`
	FeeCents           int64  `json:"fee_cents"`
	TotalCents         int64  `json:"total_cents"`
}

// Status returns the derived view of the room's active transaction.
// Pure read.
func (s *LifecycleService) Status(ctx context.Context, roomID uint64) (*StatusView, error) {
	txn, err := s.store.ActiveByRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrTxnNotFound) {
			return nil, model.ErrNoActiveTransaction
		}
		return nil, err
	}
	return &StatusView{
		TransactionID:      int64(txn.ID),
		Status:             txn.Status,
		ProgressPercentage: txn.ProgressPercentage(),
		CurrentAction:      txn.CurrentAction(),
		AmountCents:        txn.AmountCents,
		Currency:           txn.Currency,
		CommissionCents:    txn.CommissionCents,
		FeeCents:           txn.FeeCents,
		TotalCents:         txn.TotalCents,
	}, nil
}

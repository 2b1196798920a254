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

// EvidenceStore is the storage contract the gateway runs on.  Both
// methods are one atomic unit each, with locks acquired in the fixed
// order room row, then transaction row, then evidence row.
//
// Submit locks the room, loads the active transaction or builds one
// through create when none exists, runs mutate, then persists the
// returned file, the transaction and the audit entry together.  A
// second pending file of the same type violates the storage unique key
// and surfaces as repository.ErrDuplicate.
//
// Review resolves the file's owning transaction, takes the locks, runs
// decide against both rows, then persists the file decision (read from
// file.Status and its attribution fields), the transaction and the
// audit entry together.
type EvidenceStore interface {
	Submit(ctx context.Context, roomID uint64,
		create func(occupants []model.Occupant) (*model.Transaction, error),
		mutate func(txn *model.Transaction) (*model.EvidenceFile, *model.AuditEntry, error),
	) (*model.EvidenceFile, *model.Transaction, error)
	Review(ctx context.Context, fileID uint64,
		decide func(txn *model.Transaction, file *model.EvidenceFile) (*model.AuditEntry, error),
	) (*model.EvidenceFile, *model.Transaction, error)
}

// EvidenceGateway binds uploaded evidence files to transaction state
// transitions.  Submissions lazily create the room's transaction,
// reviews transition the file and the transaction inside one atomic
// unit so both commit together or neither does.
type EvidenceGateway struct {
	store   EvidenceStore
	publish EventPublisher

	commissionBps int64
	flatFeeCents  int64
}

// NewEvidenceGateway constructs an EvidenceGateway.  commissionBps and
// flatFeeCents parameterize the fee schedule applied when a transaction
// is priced.
func NewEvidenceGateway(store EvidenceStore, publish EventPublisher, commissionBps, flatFeeCents int64) *EvidenceGateway {
	return &EvidenceGateway{
		store: store, publish: publish,
		commissionBps: commissionBps, flatFeeCents: flatFeeCents,
	}
}

// SubmitInput carries a new evidence submission.  The blob is already
// stored; the gateway persists only the ref plus metadata.
type SubmitInput struct {
	FileType    string
	FileName    string
	BlobRef     string
	SizeBytes   int64
	MimeType    string
	AmountCents int64  // payment proof only; priced once per transaction
	Currency    string // payment proof only
}

// Submit creates a PENDING evidence record for the room's active
// transaction, creating the transaction on the first upload.  At most
// one pending record per (transaction, file type) is permitted; a
// violation surfaces as model.ErrEvidenceAlreadyPending so the arbiter
// can never verify a stale file while a replacement is mid-flight.
func (g *EvidenceGateway) Submit(ctx context.Context, roomID uint64, occ *model.Occupant, in SubmitInput) (*model.EvidenceFile, error) {
	if occ.RoomID != roomID {
		return nil, repository.ErrForbidden
	}
	fileType := strings.ToUpper(strings.TrimSpace(in.FileType))
	if !model.ValidFileType(fileType) {
		return nil, model.ErrWrongType
	}

	file, txn, err := g.store.Submit(ctx, roomID,
		func(occs []model.Occupant) (*model.Transaction, error) {
			return g.openTransaction(occs, in)
		},
		func(txn *model.Transaction) (*model.EvidenceFile, *model.AuditEntry, error) {
			if err := txn.ApplyUpload(fileType, occ.Role); err != nil {
				return nil, nil, err
			}
			// The seller reference is nullable until the seller is known;
			// the first seller-side upload pins it.
			if occ.Role == model.RoleSeller && txn.SellerOccupantID == nil {
				id := occ.ID
				txn.SellerOccupantID = &id
			}
			// A transaction opened by an identity document carries no
			// price yet; the first payment proof sets it.
			if fileType == model.FilePaymentProof && txn.AmountCents == 0 && in.AmountCents > 0 {
				txn.AmountCents = in.AmountCents
				txn.Currency = normalizeCurrency(in.Currency)
				txn.ComputeFees(g.commissionBps, g.flatFeeCents)
			}
			file := &model.EvidenceFile{
				TransactionID: txn.ID,
				FileType:      fileType,
				FileName:      in.FileName,
				BlobRef:       in.BlobRef,
				SizeBytes:     in.SizeBytes,
				MimeType:      in.MimeType,
				UploaderRole:  occ.Role,
			}
			entry := &model.AuditEntry{
				RoomID:      roomID,
				Action:      model.ActionEvidenceSubmitted,
				ActorName:   occ.DisplayName,
				ActorRole:   occ.Role,
				Description: fmt.Sprintf("%s submitted %s %q", occ.DisplayName, strings.ToLower(fileType), in.FileName),
			}
			return file, entry, nil
		})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.ErrEvidenceAlreadyPending
		}
		return nil, err
	}

	emit(ctx, g.publish, queue.RoomEvent{
		Event:         queue.EventEvidenceSubmitted,
		RoomID:        roomID,
		TransactionID: txn.ID,
		Status:        txn.Status,
		FileType:      fileType,
		ActorName:     occ.DisplayName,
		ActorRole:     occ.Role,
	})
	return file, nil
}

// openTransaction builds the room's transaction on first evidence
// upload.  The buyer slot must be filled; its occupant becomes the
// buyer reference.  The (room_id, active) unique key backs the
// one-active-transaction invariant should two first uploads ever race
// past the room lock.
func (g *EvidenceGateway) openTransaction(occs []model.Occupant, in SubmitInput) (*model.Transaction, error) {
	txn := &model.Transaction{
		Status:   model.StatusPendingPayment,
		Currency: normalizeCurrency(in.Currency),
	}
	for i := range occs {
		switch occs[i].Role {
		case model.RoleBuyer:
			txn.BuyerOccupantID = occs[i].ID
			txn.RoomID = occs[i].RoomID
		case model.RoleSeller:
			id := occs[i].ID
			txn.SellerOccupantID = &id
		}
	}
	if txn.BuyerOccupantID == 0 {
		return nil, model.ErrNoActiveTransaction
	}
	if in.AmountCents > 0 {
		txn.AmountCents = in.AmountCents
		txn.ComputeFees(g.commissionBps, g.flatFeeCents)
	}
	return txn, nil
}

// Approve marks a pending file VERIFIED and, for payment proofs and
// shipping receipts, advances the transaction through the matching
// verification in the same atomic unit.  Identity documents verify
// without driving any transition.
func (g *EvidenceGateway) Approve(ctx context.Context, fileID uint64, arbiter model.Arbiter) (*model.EvidenceFile, error) {
	return g.review(ctx, fileID, arbiter, "")
}

// Reject marks a pending file REJECTED with a mandatory reason and
// rolls the transaction back to its re-upload-eligible state in the
// same atomic unit.
func (g *EvidenceGateway) Reject(ctx context.Context, fileID uint64, arbiter model.Arbiter, reason string) (*model.EvidenceFile, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, model.ErrMissingReason
	}
	return g.review(ctx, fileID, arbiter, strings.TrimSpace(reason))
}

// review implements Approve (reason empty) and Reject (reason set).
func (g *EvidenceGateway) review(ctx context.Context, fileID uint64, arbiter model.Arbiter, reason string) (*model.EvidenceFile, error) {
	approve := reason == ""
	now := timeNow()

	file, txn, err := g.store.Review(ctx, fileID, func(txn *model.Transaction, file *model.EvidenceFile) (*model.AuditEntry, error) {
		if file.Status != model.EvidencePending {
			return nil, model.ErrAlreadyProcessed
		}
		var terr error
		switch model.RouteFileType(file.FileType) {
		case model.StepPayment:
			if approve {
				terr = txn.ApplyPaymentVerification(arbiter.ID, now)
			} else {
				terr = txn.ApplyPaymentRejection(reason)
			}
		case model.StepShipping:
			if approve {
				terr = txn.ApplyShippingVerification(arbiter.ID, now)
			} else {
				terr = txn.ApplyShippingRejection(reason)
			}
		case model.StepNone:
			// informational file, no transition
		}
		if terr != nil {
			// A pending file whose type does not match the transaction's
			// current verification step is a type mismatch to the caller.
			if errors.Is(terr, model.ErrNotAwaitingPaymentVerification) ||
				errors.Is(terr, model.ErrNotAwaitingShippingVerification) {
				return nil, model.ErrWrongType
			}
			return nil, terr
		}

		file.VerifiedBy = &arbiter.ID
		file.VerifiedAt = &now
		if approve {
			file.Status = model.EvidenceVerified
		} else {
			file.Status = model.EvidenceRejected
			r := reason
			file.RejectReason = &r
		}

		action := model.ActionEvidenceVerified
		desc := fmt.Sprintf("%s verified %s %q, transaction now %s",
			arbiter.DisplayName, strings.ToLower(file.FileType), file.FileName, txn.Status)
		if !approve {
			action = model.ActionEvidenceRejected
			desc = fmt.Sprintf("%s rejected %s %q: %s",
				arbiter.DisplayName, strings.ToLower(file.FileType), file.FileName, reason)
		}
		return &model.AuditEntry{
			RoomID:      txn.RoomID,
			Action:      action,
			ActorName:   arbiter.DisplayName,
			ActorRole:   model.ActorArbiter,
			Description: desc,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	event := queue.EventEvidenceVerified
	if !approve {
		event = queue.EventEvidenceRejected
	}
	emit(ctx, g.publish, queue.RoomEvent{
		Event:         event,
		RoomID:        txn.RoomID,
		TransactionID: txn.ID,
		Status:        txn.Status,
		FileType:      file.FileType,
		ActorName:     arbiter.DisplayName,
		ActorRole:     model.ActorArbiter,
		Detail:        reason,
	})
	return file, nil
}

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		c = "USD"
	}
	return c
}

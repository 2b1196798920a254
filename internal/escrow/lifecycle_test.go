package escrow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/escrow-room-service/internal/model"
	"github.com/iliyamo/escrow-room-service/internal/queue"
	"github.com/iliyamo/escrow-room-service/internal/repository"
)

func TestConfirmReceiptGuards(t *testing.T) {
	store := newFakeEscrowStore()
	pub := &capturingPublisher{}
	s := NewLifecycleService(store, pub.publish)
	buyer := &model.Occupant{ID: 1, RoomID: 7, Role: model.RoleBuyer, DisplayName: "Alice"}

	// Occupant bound to another room.
	_, err := s.ConfirmReceipt(context.Background(), 8, buyer, "")
	assert.ErrorIs(t, err, repository.ErrForbidden)

	// No active transaction in the room yet.
	_, err = s.ConfirmReceipt(context.Background(), 7, buyer, "")
	assert.ErrorIs(t, err, model.ErrNoActiveTransaction)

	// Not yet shipped.
	txn := store.seedTxn(&model.Transaction{RoomID: 7, BuyerOccupantID: 1, Status: model.StatusPaid})
	_, err = s.ConfirmReceipt(context.Background(), 7, buyer, "")
	assert.ErrorIs(t, err, model.ErrNotShipped)

	// Only the buyer occupant may confirm.
	store.txns[txn.ID].Status = model.StatusShipped
	seller := &model.Occupant{ID: 2, RoomID: 7, Role: model.RoleSeller, DisplayName: "Bob"}
	_, err = s.ConfirmReceipt(context.Background(), 7, seller, "")
	assert.ErrorIs(t, err, model.ErrNotBuyer)

	got, err := s.ConfirmReceipt(context.Background(), 7, buyer, "arrived intact")
	require.NoError(t, err)
	assert.Equal(t, model.StatusGoodsReceived, got.Status)
	require.NotNil(t, got.ReceiptConfirmedAt)
	assert.Equal(t, []string{queue.EventReceiptConfirmed}, pub.names())
}

func TestReleaseFundsExactlyOnce(t *testing.T) {
	store := newFakeEscrowStore()
	pub := &capturingPublisher{}
	s := NewLifecycleService(store, pub.publish)
	arbiter := model.Arbiter{ID: 42, DisplayName: "GM"}

	txn := store.seedTxn(&model.Transaction{
		RoomID: 7, BuyerOccupantID: 1, Status: model.StatusGoodsReceived,
		AmountCents: 10000, CommissionCents: 250, FeeCents: 100, TotalCents: 10350, Currency: "USD",
	})

	got, err := s.ReleaseFunds(context.Background(), 7, arbiter, "paid out")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.FundsReleasedBy)
	assert.Equal(t, arbiter.ID, *got.FundsReleasedBy)
	require.NotNil(t, got.FundsReleasedAt)

	// The second call finds no active transaction: the completed row has
	// left the active set, so funds can never move twice.
	_, err = s.ReleaseFunds(context.Background(), 7, arbiter, "again")
	assert.ErrorIs(t, err, model.ErrNoActiveTransaction)

	released := 0
	for _, e := range store.entries {
		if e.Action == model.ActionFundsReleased {
			released++
		}
	}
	assert.Equal(t, 1, released, "exactly one release audit entry")
	assert.Equal(t, []string{queue.EventFundsReleased}, pub.names())
	require.NotNil(t, store.txns[txn.ID].CompletedAt)
}

func TestReleaseFundsRefusesUnconfirmedGoods(t *testing.T) {
	store := newFakeEscrowStore()
	pub := &capturingPublisher{}
	s := NewLifecycleService(store, pub.publish)

	store.seedTxn(&model.Transaction{RoomID: 7, BuyerOccupantID: 1, Status: model.StatusShipped})
	_, err := s.ReleaseFunds(context.Background(), 7, model.Arbiter{ID: 42}, "")
	assert.ErrorIs(t, err, model.ErrNotReadyForRelease)
	assert.Empty(t, pub.names())
	assert.Empty(t, store.entries)
}

func TestCancelAndDispute(t *testing.T) {
	store := newFakeEscrowStore()
	pub := &capturingPublisher{}
	s := NewLifecycleService(store, pub.publish)
	arbiter := model.Arbiter{ID: 42, DisplayName: "GM"}

	txn := store.seedTxn(&model.Transaction{RoomID: 7, BuyerOccupantID: 1, Status: model.StatusPaid})
	got, err := s.Cancel(context.Background(), 7, arbiter, "buyer withdrew")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	// The cancelled transaction is terminal; nothing is left to dispute.
	_, err = s.Dispute(context.Background(), 7, arbiter, "changed mind")
	assert.ErrorIs(t, err, model.ErrNoActiveTransaction)

	txn2 := store.seedTxn(&model.Transaction{RoomID: 9, BuyerOccupantID: 3, Status: model.StatusShipped})
	got, err = s.Dispute(context.Background(), 9, arbiter, "seller unreachable")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDisputed, got.Status)

	assert.False(t, store.txns[txn.ID].Active())
	assert.False(t, store.txns[txn2.ID].Active())
	assert.Equal(t, []string{queue.EventTransactionCancelled, queue.EventTransactionDisputed}, pub.names())
}

func TestStatusView(t *testing.T) {
	store := newFakeEscrowStore()
	s := NewLifecycleService(store, nil)

	_, err := s.Status(context.Background(), 7)
	assert.ErrorIs(t, err, model.ErrNoActiveTransaction)

	store.seedTxn(&model.Transaction{
		RoomID: 7, BuyerOccupantID: 1, Status: model.StatusShipped,
		AmountCents: 5000, CommissionCents: 125, FeeCents: 100, TotalCents: 5225, Currency: "USD",
	})
	view, err := s.Status(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, model.StatusShipped, view.Status)
	assert.Equal(t, 60, view.ProgressPercentage)
	assert.Equal(t, "buyer: confirm receipt of goods", view.CurrentAction)
	assert.Equal(t, int64(5225), view.TotalCents)
}

// TestEscrowEndToEnd walks the canonical path through the gateway and
// the lifecycle service over one shared store: payment proof submitted
// and verified, shipping receipt submitted and verified, receipt
// confirmed, funds released once and only once.
func TestEscrowEndToEnd(t *testing.T) {
	store := newFakeEscrowStore()
	buyer := store.addOccupant(7, 1, model.RoleBuyer, "Alice", "alice@example.com")
	seller := store.addOccupant(7, 2, model.RoleSeller, "Bob", "bob@example.com")
	pub := &capturingPublisher{}
	g := newGateway(store, pub)
	s := NewLifecycleService(store, pub.publish)
	arbiter := model.Arbiter{ID: 42, DisplayName: "GM"}
	ctx := context.Background()

	proof, err := g.Submit(ctx, 7, buyer, SubmitInput{
		FileType: model.FilePaymentProof, FileName: "wire.pdf", AmountCents: 10000, Currency: "USD",
	})
	require.NoError(t, err)
	_, err = g.Approve(ctx, proof.ID, arbiter)
	require.NoError(t, err)

	receipt, err := g.Submit(ctx, 7, seller, SubmitInput{
		FileType: model.FileShippingReceipt, FileName: "label.pdf",
	})
	require.NoError(t, err)
	_, err = g.Approve(ctx, receipt.ID, arbiter)
	require.NoError(t, err)

	txn, err := s.ConfirmReceipt(ctx, 7, buyer, "all good")
	require.NoError(t, err)
	assert.Equal(t, model.StatusGoodsReceived, txn.Status)

	txn, err = s.ReleaseFunds(ctx, 7, arbiter, "settled")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, txn.Status)
	assert.Equal(t, int64(10350), txn.TotalCents)

	_, err = s.ReleaseFunds(ctx, 7, arbiter, "settled again")
	assert.ErrorIs(t, err, model.ErrNoActiveTransaction)

	assert.Equal(t, []string{
		queue.EventEvidenceSubmitted,
		queue.EventEvidenceVerified,
		queue.EventEvidenceSubmitted,
		queue.EventEvidenceVerified,
		queue.EventReceiptConfirmed,
		queue.EventFundsReleased,
	}, pub.names())

	// The audit trail carries one entry per committed mutation, in
	// commit order.
	require.Len(t, store.entries, 6)
	for i, e := range store.entries {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

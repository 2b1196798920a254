package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/escrow-room-service/internal/model"
)

func newTxn(status string) *model.Transaction {
	return &model.Transaction{
		ID:              1,
		RoomID:          7,
		BuyerOccupantID: 10,
		AmountCents:     50_000,
		Currency:        "USD",
		Status:          status,
	}
}

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestVerifyPaymentOnlyFromAwaitingReview(t *testing.T) {
	for _, status := range []string{
		model.StatusPendingPayment, model.StatusPaid, model.StatusShipped,
		model.StatusGoodsReceived, model.StatusCompleted, model.StatusCancelled,
	} {
		txn := newTxn(status)
		err := txn.ApplyPaymentVerification(3, now)
		assert.ErrorIs(t, err, model.ErrNotAwaitingPaymentVerification, "status %s", status)
		assert.Equal(t, status, txn.Status, "guard failure must not mutate status")
	}

	txn := newTxn(model.StatusAwaitingPaymentReview)
	require.NoError(t, txn.ApplyPaymentVerification(3, now))
	assert.Equal(t, model.StatusPaid, txn.Status)
	require.NotNil(t, txn.PaymentVerifiedBy)
	assert.Equal(t, uint64(3), *txn.PaymentVerifiedBy)
	require.NotNil(t, txn.PaymentVerifiedAt)
	assert.Equal(t, now, *txn.PaymentVerifiedAt)
}

func TestRejectPaymentRequiresReason(t *testing.T) {
	txn := newTxn(model.StatusAwaitingPaymentReview)
	assert.ErrorIs(t, txn.ApplyPaymentRejection(""), model.ErrMissingReason)
	assert.ErrorIs(t, txn.ApplyPaymentRejection("   "), model.ErrMissingReason)
	assert.Equal(t, model.StatusAwaitingPaymentReview, txn.Status)

	require.NoError(t, txn.ApplyPaymentRejection("screenshot is cropped"))
	assert.Equal(t, model.StatusPaymentRejected, txn.Status)
	require.NotNil(t, txn.PaymentRejectionReason)
	assert.Equal(t, "screenshot is cropped", *txn.PaymentRejectionReason)
}

func TestRejectShippingRequiresReason(t *testing.T) {
	txn := newTxn(model.StatusAwaitingShippingReview)
	assert.ErrorIs(t, txn.ApplyShippingRejection(""), model.ErrMissingReason)

	require.NoError(t, txn.ApplyShippingRejection("tracking number invalid"))
	assert.Equal(t, model.StatusShippingRejected, txn.Status)
}

func TestVerifyShippingOnlyFromAwaitingReview(t *testing.T) {
	txn := newTxn(model.StatusPaid)
	assert.ErrorIs(t, txn.ApplyShippingVerification(3, now), model.ErrNotAwaitingShippingVerification)

	txn.Status = model.StatusAwaitingShippingReview
	require.NoError(t, txn.ApplyShippingVerification(3, now))
	assert.Equal(t, model.StatusShipped, txn.Status)
}

func TestConfirmReceiptBuyerOnlyFromShipped(t *testing.T) {
	txn := newTxn(model.StatusShipped)
	assert.ErrorIs(t, txn.ApplyReceipt(99, now), model.ErrNotBuyer)
	assert.Equal(t, model.StatusShipped, txn.Status)

	pre := newTxn(model.StatusAwaitingShippingReview)
	assert.ErrorIs(t, pre.ApplyReceipt(pre.BuyerOccupantID, now), model.ErrNotShipped)

	require.NoError(t, txn.ApplyReceipt(txn.BuyerOccupantID, now))
	assert.Equal(t, model.StatusGoodsReceived, txn.Status)
	require.NotNil(t, txn.ReceiptConfirmedAt)
}

func TestReleaseFundsIdempotentGuard(t *testing.T) {
	txn := newTxn(model.StatusGoodsReceived)

	require.NoError(t, txn.ApplyRelease(3, "all checks passed", now))
	assert.Equal(t, model.StatusCompleted, txn.Status)
	require.NotNil(t, txn.FundsReleasedAt)
	first := *txn.FundsReleasedAt
	require.NotNil(t, txn.FundsReleasedBy)
	assert.Equal(t, uint64(3), *txn.FundsReleasedBy)

	// Second call must fail because the status already left the
	// eligible set, and must not touch the recorded attribution.
	err := txn.ApplyRelease(3, "again", now.Add(time.Minute))
	assert.ErrorIs(t, err, model.ErrNotReadyForRelease)
	assert.Equal(t, model.StatusCompleted, txn.Status)
	assert.Equal(t, first, *txn.FundsReleasedAt)
}

func TestReleaseFundsNeverSkipsVerification(t *testing.T) {
	for _, status := range []string{
		model.StatusPendingPayment, model.StatusAwaitingPaymentReview,
		model.StatusPaid, model.StatusAwaitingShippingReview, model.StatusShipped,
		model.StatusPaymentRejected, model.StatusShippingRejected,
	} {
		txn := newTxn(status)
		assert.ErrorIs(t, txn.ApplyRelease(3, "", now), model.ErrNotReadyForRelease, "status %s", status)
	}
}

func TestCancelAndDisputeFromNonTerminalOnly(t *testing.T) {
	txn := newTxn(model.StatusShipped)
	require.NoError(t, txn.ApplyCancel("buyer withdrew", now))
	assert.Equal(t, model.StatusCancelled, txn.Status)
	assert.ErrorIs(t, txn.ApplyCancel("again", now), model.ErrTerminalStatus)
	assert.ErrorIs(t, txn.ApplyDispute("late", now), model.ErrTerminalStatus)

	other := newTxn(model.StatusAwaitingPaymentReview)
	require.NoError(t, other.ApplyDispute("chargeback claim", now))
	assert.Equal(t, model.StatusDisputed, other.Status)
}

func TestParseStatusDeliveredAlias(t *testing.T) {
	got, ok := model.ParseStatus("delivered")
	require.True(t, ok)
	assert.Equal(t, model.StatusGoodsReceived, got)

	got, ok = model.ParseStatus(" goods_received ")
	require.True(t, ok)
	assert.Equal(t, model.StatusGoodsReceived, got)

	_, ok = model.ParseStatus("refunded")
	assert.False(t, ok)
}

func TestProgressAndCurrentActionAreTotal(t *testing.T) {
	statuses := []string{
		model.StatusPendingPayment, model.StatusAwaitingPaymentReview,
		model.StatusPaid, model.StatusAwaitingShippingReview,
		model.StatusShipped, model.StatusGoodsReceived, model.StatusCompleted,
		model.StatusPaymentRejected, model.StatusShippingRejected,
		model.StatusCancelled, model.StatusDisputed,
	}
	prevOnPath := -1
	for _, status := range statuses {
		txn := newTxn(status)
		p := txn.ProgressPercentage()
		assert.GreaterOrEqual(t, p, 0, status)
		assert.LessOrEqual(t, p, 100, status)
		assert.NotEmpty(t, txn.CurrentAction(), status)
		// Canonical-path statuses must be strictly increasing.
		switch status {
		case model.StatusPendingPayment, model.StatusAwaitingPaymentReview,
			model.StatusPaid, model.StatusAwaitingShippingReview,
			model.StatusShipped, model.StatusGoodsReceived, model.StatusCompleted:
			assert.Greater(t, p, prevOnPath, status)
			prevOnPath = p
		}
	}
	assert.Equal(t, 100, newTxn(model.StatusCompleted).ProgressPercentage())
	assert.Equal(t, 0, newTxn(model.StatusPendingPayment).ProgressPercentage())
}

func TestComputeFees(t *testing.T) {
	txn := newTxn(model.StatusPendingPayment)
	txn.AmountCents = 100_000
	txn.ComputeFees(250, 199) // 2.5% + $1.99
	assert.Equal(t, int64(2500), txn.CommissionCents)
	assert.Equal(t, int64(199), txn.FeeCents)
	assert.Equal(t, int64(102_699), txn.TotalCents)
}

// TestCanonicalLifecycle drives a transaction through the full happy
// path: payment proof, payment verification, shipping receipt, shipping
// verification, buyer receipt, fund release.
func TestCanonicalLifecycle(t *testing.T) {
	txn := newTxn(model.StatusPendingPayment)

	require.NoError(t, txn.ApplyUpload(model.FilePaymentProof, model.RoleBuyer))
	assert.Equal(t, model.StatusAwaitingPaymentReview, txn.Status)

	require.NoError(t, txn.ApplyPaymentVerification(3, now))
	assert.Equal(t, model.StatusPaid, txn.Status)

	require.NoError(t, txn.ApplyUpload(model.FileShippingReceipt, model.RoleSeller))
	assert.Equal(t, model.StatusAwaitingShippingReview, txn.Status)

	require.NoError(t, txn.ApplyShippingVerification(3, now))
	assert.Equal(t, model.StatusShipped, txn.Status)

	require.NoError(t, txn.ApplyReceipt(txn.BuyerOccupantID, now))
	assert.Equal(t, model.StatusGoodsReceived, txn.Status)

	require.NoError(t, txn.ApplyRelease(3, "done", now))
	assert.Equal(t, model.StatusCompleted, txn.Status)
	require.NotNil(t, txn.FundsReleasedAt)

	assert.ErrorIs(t, txn.ApplyRelease(3, "", now), model.ErrNotReadyForRelease)
}

// TestRejectionRequiresFreshUpload checks the rollback branches: a
// rejected verification returns the transaction to a re-upload-eligible
// point and a retried verification without a fresh upload fails.
func TestRejectionRequiresFreshUpload(t *testing.T) {
	txn := newTxn(model.StatusAwaitingPaymentReview)
	require.NoError(t, txn.ApplyPaymentRejection("blurred"))
	assert.Equal(t, model.StatusPaymentRejected, txn.Status)

	// Verification cannot be retried from the rejected state.
	assert.ErrorIs(t, txn.ApplyPaymentVerification(3, now), model.ErrNotAwaitingPaymentVerification)

	// A replacement upload re-arms the verification step.
	require.NoError(t, txn.ApplyUpload(model.FilePaymentProof, model.RoleBuyer))
	assert.Equal(t, model.StatusAwaitingPaymentReview, txn.Status)
	require.NoError(t, txn.ApplyPaymentVerification(3, now))
	assert.Nil(t, txn.PaymentRejectionReason, "reason cleared once a replacement is verified")
}

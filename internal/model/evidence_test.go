package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/escrow-room-service/internal/model"
)

func TestRouteFileType(t *testing.T) {
	assert.Equal(t, model.StepPayment, model.RouteFileType(model.FilePaymentProof))
	assert.Equal(t, model.StepShipping, model.RouteFileType(model.FileShippingReceipt))
	assert.Equal(t, model.StepNone, model.RouteFileType(model.FileIdentityDocument))
	assert.Equal(t, model.StepNone, model.RouteFileType("SELFIE"))
}

func TestApplyUploadRouting(t *testing.T) {
	// Payment proof only from a payment-eligible status and only by the buyer.
	txn := newTxn(model.StatusPendingPayment)
	assert.ErrorIs(t, txn.ApplyUpload(model.FilePaymentProof, model.RoleSeller), model.ErrNotBuyer)
	require.NoError(t, txn.ApplyUpload(model.FilePaymentProof, model.RoleBuyer))
	assert.Equal(t, model.StatusAwaitingPaymentReview, txn.Status)

	// Shipping receipt requires PAID and the seller role.
	assert.ErrorIs(t, txn.ApplyUpload(model.FileShippingReceipt, model.RoleSeller), model.ErrWrongType)
	txn.Status = model.StatusPaid
	assert.ErrorIs(t, txn.ApplyUpload(model.FileShippingReceipt, model.RoleBuyer), model.ErrNotSeller)
	require.NoError(t, txn.ApplyUpload(model.FileShippingReceipt, model.RoleSeller))
	assert.Equal(t, model.StatusAwaitingShippingReview, txn.Status)
}

func TestSecondUploadWhileReviewPendingIsAlreadyPending(t *testing.T) {
	// An awaiting-review status means a file of that type is still under
	// review, so a re-submission is reported as already-pending, not as a
	// type mismatch (the pending-uniqueness constraint backs this up in
	// storage).
	txn := newTxn(model.StatusPendingPayment)
	require.NoError(t, txn.ApplyUpload(model.FilePaymentProof, model.RoleBuyer))
	assert.ErrorIs(t, txn.ApplyUpload(model.FilePaymentProof, model.RoleBuyer), model.ErrEvidenceAlreadyPending)

	txn = newTxn(model.StatusPaid)
	require.NoError(t, txn.ApplyUpload(model.FileShippingReceipt, model.RoleSeller))
	assert.ErrorIs(t, txn.ApplyUpload(model.FileShippingReceipt, model.RoleSeller), model.ErrEvidenceAlreadyPending)
}

func TestIdentityDocumentNeverDrivesTransition(t *testing.T) {
	for _, status := range []string{
		model.StatusPendingPayment, model.StatusAwaitingPaymentReview,
		model.StatusPaid, model.StatusShipped, model.StatusGoodsReceived,
	} {
		txn := newTxn(status)
		require.NoError(t, txn.ApplyUpload(model.FileIdentityDocument, model.RoleBuyer), status)
		assert.Equal(t, status, txn.Status, "identity document must not move status")
	}

	txn := newTxn(model.StatusCompleted)
	assert.ErrorIs(t, txn.ApplyUpload(model.FileIdentityDocument, model.RoleBuyer), model.ErrTerminalStatus)
}

func TestCanAssign(t *testing.T) {
	empty := []model.Occupant{}
	buyer := model.Occupant{Role: model.RoleBuyer, Contact: "b@example.com"}
	seller := model.Occupant{Role: model.RoleSeller, Contact: "s@example.com"}

	// Buyer joins first; a seller cannot open a room.
	assert.NoError(t, model.CanAssign(empty, model.RoleBuyer, "b@example.com"))
	assert.ErrorIs(t, model.CanAssign(empty, model.RoleSeller, "s@example.com"), model.ErrRoleUnavailable)

	// Occupied slots reject a second taker.
	assert.ErrorIs(t, model.CanAssign([]model.Occupant{buyer}, model.RoleBuyer, "b2@example.com"), model.ErrRoleUnavailable)
	assert.NoError(t, model.CanAssign([]model.Occupant{buyer}, model.RoleSeller, "s@example.com"))
	assert.ErrorIs(t, model.CanAssign([]model.Occupant{buyer, seller}, model.RoleSeller, "s2@example.com"), model.ErrRoleUnavailable)

	// The same participant cannot take both slots.
	assert.ErrorIs(t, model.CanAssign([]model.Occupant{buyer}, model.RoleSeller, "b@example.com"), model.ErrDuplicateRole)

	// Unknown role names are never assignable.
	assert.ErrorIs(t, model.CanAssign(empty, "OBSERVER", "x@example.com"), model.ErrRoleUnavailable)
}

package model

import (
    "strings"
    "time"
)

// Transaction status values as stored in escrow_transactions.status.
// The canonical path is:
//
//  PENDING_PAYMENT -> AWAITING_PAYMENT_VERIFICATION -> PAID
//      -> AWAITING_SHIPPING_VERIFICATION -> SHIPPED
//      -> GOODS_RECEIVED -> COMPLETED
//
// with the rejection branches PAYMENT_REJECTED (re-upload eligible,
// equivalent to PENDING_PAYMENT) and SHIPPING_REJECTED (equivalent to
// PAID), and the terminal administrative states CANCELLED and DISPUTED.
//
// "DELIVERED" is accepted as an input alias for GOODS_RECEIVED by
// ParseStatus; only GOODS_RECEIVED is ever stored.
const (
    StatusPendingPayment           = "PENDING_PAYMENT"
    StatusAwaitingPaymentReview    = "AWAITING_PAYMENT_VERIFICATION"
    StatusPaid                     = "PAID"
    StatusAwaitingShippingReview   = "AWAITING_SHIPPING_VERIFICATION"
    StatusShipped                  = "SHIPPED"
    StatusGoodsReceived            = "GOODS_RECEIVED"
    StatusCompleted                = "COMPLETED"
    StatusPaymentRejected          = "PAYMENT_REJECTED"
    StatusShippingRejected         = "SHIPPING_REJECTED"
    StatusCancelled                = "CANCELLED"
    StatusDisputed                 = "DISPUTED"
)

// ParseStatus normalizes a status string to its canonical constant.
// It accepts any casing and the DELIVERED alias.  The second return
// value is false when the input names no known status.
func ParseStatus(s string) (string, bool) {
    switch strings.ToUpper(strings.TrimSpace(s)) {
    case StatusPendingPayment:
        return StatusPendingPayment, true
    case StatusAwaitingPaymentReview:
        return StatusAwaitingPaymentReview, true
    case StatusPaid:
        return StatusPaid, true
    case StatusAwaitingShippingReview:
        return StatusAwaitingShippingReview, true
    case StatusShipped:
        return StatusShipped, true
    case StatusGoodsReceived, "DELIVERED":
        return StatusGoodsReceived, true
    case StatusCompleted:
        return StatusCompleted, true
    case StatusPaymentRejected:
        return StatusPaymentRejected, true
    case StatusShippingRejected:
        return StatusShippingRejected, true
    case StatusCancelled:
        return StatusCancelled, true
    case StatusDisputed:
        return StatusDisputed, true
    }
    return "", false
}

// TerminalStatus reports whether a status admits no further transitions.
func TerminalStatus(s string) bool {
    return s == StatusCompleted || s == StatusCancelled || s == StatusDisputed
}

// Transaction is the escrow lifecycle record for one room.  It is
// created lazily on the first evidence upload and becomes immutable
// once COMPLETED, CANCELLED or DISPUTED.  At most one non-terminal
// transaction exists per room; the storage layer enforces this with
// a unique key over (room_id, active).
//
// Money fields are integer cents.  TotalCents is always
// AmountCents + CommissionCents + FeeCents.
type Transaction struct {
    ID               uint64  // escrow_transactions.id
    RoomID           uint64  // escrow_transactions.room_id
    BuyerOccupantID  uint64  // escrow_transactions.buyer_occupant_id
    SellerOccupantID *uint64 // escrow_transactions.seller_occupant_id (nullable until the seller is known)
    AmountCents      int64   // escrow_transactions.amount_cents
    Currency         string  // escrow_transactions.currency (ISO 4217)
    CommissionCents  int64   // escrow_transactions.commission_cents
    FeeCents         int64   // escrow_transactions.fee_cents
    TotalCents       int64   // escrow_transactions.total_cents
    Status           string  // escrow_transactions.status

    PaymentRejectionReason  *string // escrow_transactions.payment_rejection_reason (nullable)
    ShippingRejectionReason *string // escrow_transactions.shipping_rejection_reason (nullable)
    ArbiterNotes            *string // escrow_transactions.arbiter_notes (nullable)

    PaymentVerifiedBy  *uint64    // escrow_transactions.payment_verified_by (arbiter id, nullable)
    PaymentVerifiedAt  *time.Time // escrow_transactions.payment_verified_at (nullable)
    ShippingVerifiedBy *uint64    // escrow_transactions.shipping_verified_by (nullable)
    ShippingVerifiedAt *time.Time // escrow_transactions.shipping_verified_at (nullable)
    ReceiptConfirmedAt *time.Time // escrow_transactions.receipt_confirmed_at (nullable)
    FundsReleasedBy    *uint64    // escrow_transactions.funds_released_by (nullable)
    FundsReleasedAt    *time.Time // escrow_transactions.funds_released_at (nullable)
    CompletedAt        *time.Time // escrow_transactions.completed_at (nullable)

    CreatedAt time.Time // escrow_transactions.created_at
    UpdatedAt time.Time // escrow_transactions.updated_at
}

// Active reports whether the transaction is still in a non-terminal
// state.  It mirrors the active column: 1 while non-terminal, NULL
// once terminal.
func (t *Transaction) Active() bool { return !TerminalStatus(t.Status) }

// ComputeFees fills CommissionCents, FeeCents and TotalCents from the
// amount using a basis-point commission rate and a flat fee.
func (t *Transaction) ComputeFees(commissionBps, flatFeeCents int64) {
    t.CommissionCents = t.AmountCents * commissionBps / 10000
    t.FeeCents = flatFeeCents
    t.TotalCents = t.AmountCents + t.CommissionCents + t.FeeCents
}

// ApplyPaymentVerification advances AWAITING_PAYMENT_VERIFICATION to
// PAID and records the verifying arbiter.  Any other current status is
// a guard violation.
func (t *Transaction) ApplyPaymentVerification(arbiterID uint64, now time.Time) error {
    if t.Status != StatusAwaitingPaymentReview {
        return ErrNotAwaitingPaymentVerification
    }
    now = now.UTC()
    t.Status = StatusPaid
    t.PaymentVerifiedBy = &arbiterID
    t.PaymentVerifiedAt = &now
    t.PaymentRejectionReason = nil
    return nil
}

// ApplyPaymentRejection moves AWAITING_PAYMENT_VERIFICATION to
// PAYMENT_REJECTED.  A non-blank reason is mandatory; the buyer becomes
// eligible to upload a replacement proof.
func (t *Transaction) ApplyPaymentRejection(reason string) error {
    if strings.TrimSpace(reason) == "" {
        return ErrMissingReason
    }
    if t.Status != StatusAwaitingPaymentReview {
        return ErrNotAwaitingPaymentVerification
    }
    t.Status = StatusPaymentRejected
    t.PaymentRejectionReason = &reason
    return nil
}

// ApplyShippingVerification advances AWAITING_SHIPPING_VERIFICATION to
// SHIPPED and records the verifying arbiter.
func (t *Transaction) ApplyShippingVerification(arbiterID uint64, now time.Time) error {
    if t.Status != StatusAwaitingShippingReview {
        return ErrNotAwaitingShippingVerification
    }
    now = now.UTC()
    t.Status = StatusShipped
    t.ShippingVerifiedBy = &arbiterID
    t.ShippingVerifiedAt = &now
    t.ShippingRejectionReason = nil
    return nil
}

// ApplyShippingRejection moves AWAITING_SHIPPING_VERIFICATION to
// SHIPPING_REJECTED with a mandatory reason.
func (t *Transaction) ApplyShippingRejection(reason string) error {
    if strings.TrimSpace(reason) == "" {
        return ErrMissingReason
    }
    if t.Status != StatusAwaitingShippingReview {
        return ErrNotAwaitingShippingVerification
    }
    t.Status = StatusShippingRejected
    t.ShippingRejectionReason = &reason
    return nil
}

// ApplyReceipt records the buyer's confirmation that the goods arrived,
// advancing SHIPPED to GOODS_RECEIVED.  Only the buyer occupant may
// confirm.
func (t *Transaction) ApplyReceipt(occupantID uint64, now time.Time) error {
    if occupantID != t.BuyerOccupantID {
        return ErrNotBuyer
    }
    if t.Status != StatusShipped {
        return ErrNotShipped
    }
    now = now.UTC()
    t.Status = StatusGoodsReceived
    t.ReceiptConfirmedAt = &now
    return nil
}

// ApplyRelease finalizes the transaction: GOODS_RECEIVED becomes
// COMPLETED with full attribution.  The status guard is the double
// release protection: once COMPLETED the status is no longer eligible,
// so a second call fails with ErrNotReadyForRelease.
func (t *Transaction) ApplyRelease(arbiterID uint64, notes string, now time.Time) error {
    if t.Status != StatusGoodsReceived {
        return ErrNotReadyForRelease
    }
    now = now.UTC()
    t.Status = StatusCompleted
    t.FundsReleasedBy = &arbiterID
    t.FundsReleasedAt = &now
    t.CompletedAt = &now
    if strings.TrimSpace(notes) != "" {
        t.ArbiterNotes = &notes
    }
    return nil
}

// ApplyCancel terminates the transaction from any non-terminal state by
// explicit administrative action.
func (t *Transaction) ApplyCancel(notes string, now time.Time) error {
    if TerminalStatus(t.Status) {
        return ErrTerminalStatus
    }
    now = now.UTC()
    t.Status = StatusCancelled
    t.CompletedAt = &now
    if strings.TrimSpace(notes) != "" {
        t.ArbiterNotes = &notes
    }
    return nil
}

// ApplyDispute freezes the transaction from any non-terminal state.
func (t *Transaction) ApplyDispute(notes string, now time.Time) error {
    if TerminalStatus(t.Status) {
        return ErrTerminalStatus
    }
    t.Status = StatusDisputed
    if strings.TrimSpace(notes) != "" {
        t.ArbiterNotes = &notes
    }
    return nil
}

// progressByStatus maps each status to its position on the canonical
// path.  Rejected states sit just past their re-upload point so the
// bar visibly falls back without returning to zero.
var progressByStatus = map[string]int{
    StatusPendingPayment:         0,
    StatusPaymentRejected:        5,
    StatusAwaitingPaymentReview:  15,
    StatusPaid:                   30,
    StatusShippingRejected:       35,
    StatusAwaitingShippingReview: 45,
    StatusShipped:                60,
    StatusGoodsReceived:          80,
    StatusCompleted:              100,
    StatusCancelled:              0,
    StatusDisputed:               0,
}

// ProgressPercentage returns a deterministic 0–100 figure for the
// transaction's position on the canonical path.  Pure read.
func (t *Transaction) ProgressPercentage() int {
    return progressByStatus[t.Status]
}

// actionByStatus maps each status to the next expected actor action.
var actionByStatus = map[string]string{
    StatusPendingPayment:         "buyer: upload payment proof",
    StatusPaymentRejected:        "buyer: upload a replacement payment proof",
    StatusAwaitingPaymentReview:  "arbiter: review payment proof",
    StatusPaid:                   "seller: upload shipping receipt",
    StatusShippingRejected:       "seller: upload a replacement shipping receipt",
    StatusAwaitingShippingReview: "arbiter: review shipping receipt",
    StatusShipped:                "buyer: confirm receipt of goods",
    StatusGoodsReceived:          "arbiter: release funds",
    StatusCompleted:              "transaction complete",
    StatusCancelled:              "transaction cancelled",
    StatusDisputed:               "arbiter: resolve dispute",
}

// CurrentAction returns a human-readable label of the next expected
// actor action for the transaction's status.  Pure read.
func (t *Transaction) CurrentAction() string {
    return actionByStatus[t.Status]
}

// Package model defines the escrow domain entities and the pure rules
// that govern them: slot assignment preconditions, the transaction
// state machine and evidence type routing.  Everything in this package
// is free of I/O so the rules can be exercised directly in tests.
package model

import "errors"

// Slot assignment failures.  Handlers translate these into 409/400
// responses; the occupancy manager also maps a lost storage-level race
// to ErrRoleUnavailable after its single retry.
var (
    // ErrRoleUnavailable is returned when the requested slot is already
    // occupied, or when a seller tries to join before any buyer.
    ErrRoleUnavailable = errors.New("role unavailable")
    // ErrDuplicateRole is returned when a participant already holds a
    // slot in the same room.
    ErrDuplicateRole = errors.New("participant already in this room")
    // ErrAlreadyOccupying is returned when a participant holds a slot in
    // a different room.
    ErrAlreadyOccupying = errors.New("participant already occupies another room")
    // ErrRoomExpired is returned when joining a room past its expiry.
    ErrRoomExpired = errors.New("room expired")
)

// Transaction state machine guard violations.  Every guard failure is a
// typed error, never a silent no-op.
var (
    ErrNotAwaitingPaymentVerification  = errors.New("transaction is not awaiting payment verification")
    ErrNotAwaitingShippingVerification = errors.New("transaction is not awaiting shipping verification")
    ErrMissingReason                   = errors.New("rejection reason is required")
    ErrNotShipped                      = errors.New("transaction is not in shipped state")
    ErrNotBuyer                        = errors.New("only the buyer may perform this action")
    ErrNotSeller                       = errors.New("only the seller may perform this action")
    ErrNotReadyForRelease              = errors.New("transaction is not ready for fund release")
    ErrTerminalStatus                  = errors.New("transaction is in a terminal state")
)

// Evidence handling failures.
var (
    // ErrEvidenceAlreadyPending is returned when a second file of the
    // same type is submitted while one is still awaiting review.
    ErrEvidenceAlreadyPending = errors.New("evidence of this type is already pending review")
    // ErrAlreadyProcessed is returned when approving or rejecting a file
    // that has already been verified or rejected.
    ErrAlreadyProcessed = errors.New("evidence file already processed")
    // ErrWrongType is returned when an evidence file cannot be accepted
    // for the transaction's current verification step.
    ErrWrongType = errors.New("evidence type not accepted at this stage")
    // ErrNoActiveTransaction is returned when an operation requires an
    // active transaction and the room has none.
    ErrNoActiveTransaction = errors.New("room has no active transaction")
    // ErrActiveTransaction is returned when an operation requires the
    // room to have no active transaction (e.g. arbiter reset).
    ErrActiveTransaction = errors.New("room still has an active transaction")
)

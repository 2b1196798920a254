package model

import "time"

// Audit action codes recorded with every state-changing operation.
const (
    ActionRoomCreated          = "room.created"
    ActionSlotAssigned         = "slot.assigned"
    ActionSlotReleased         = "slot.released"
    ActionRoomReset            = "room.reset"
    ActionEvidenceSubmitted    = "evidence.submitted"
    ActionEvidenceVerified     = "evidence.verified"
    ActionEvidenceRejected     = "evidence.rejected"
    ActionReceiptConfirmed     = "receipt.confirmed"
    ActionFundsReleased        = "funds.released"
    ActionTransactionCancelled = "transaction.cancelled"
    ActionTransactionDisputed  = "transaction.disputed"
)

// AuditEntry is one append-only record of who did what in a room.
// Entries are never mutated or deleted.  Seq is a per-room monotonic
// sequence assigned inside the same transaction as the causing
// operation, so commit order and sequence order agree.
type AuditEntry struct {
    ID          uint64    // audit_entries.id
    RoomID      uint64    // audit_entries.room_id
    Seq         uint64    // audit_entries.seq
    Action      string    // audit_entries.action
    ActorName   string    // audit_entries.actor_name
    ActorRole   string    // audit_entries.actor_role (BUYER, SELLER, ARBITER, SYSTEM)
    Description string    // audit_entries.description
    CreatedAt   time.Time // audit_entries.created_at
}

// Actor roles recorded on audit entries beyond the two slot roles.
const (
    ActorArbiter = "ARBITER"
    ActorSystem  = "SYSTEM"
)

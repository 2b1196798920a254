package queue

// Semantic event names emitted after each successful commit.  Delivery
// and transport are entirely the consumer's concern.
const (
    EventSlotAssigned         = "SlotAssigned"
    EventSlotReleased         = "SlotReleased"
    EventRoomReset            = "RoomReset"
    EventEvidenceSubmitted    = "EvidenceSubmitted"
    EventEvidenceVerified     = "EvidenceVerified"
    EventEvidenceRejected     = "EvidenceRejected"
    EventReceiptConfirmed     = "ReceiptConfirmed"
    EventFundsReleased        = "FundsReleased"
    EventTransactionCancelled = "TransactionCancelled"
    EventTransactionDisputed  = "TransactionDisputed"
)

// RoomEvent is published to the room.events queue after a state-changing
// operation commits.  It carries enough information for downstream
// consumers to notify participants or feed analytics without querying
// the primary database.
type RoomEvent struct {
    Event         string `json:"event"`
    RoomID        uint64 `json:"room_id"`
    RoomNumber    string `json:"room_number,omitempty"`
    TransactionID uint64 `json:"transaction_id,omitempty"`
    Status        string `json:"status,omitempty"`
    FileType      string `json:"file_type,omitempty"`
    ActorName     string `json:"actor_name,omitempty"`
    ActorRole     string `json:"actor_role,omitempty"`
    Detail        string `json:"detail,omitempty"`
    OccurredAt    string `json:"occurred_at"`
}

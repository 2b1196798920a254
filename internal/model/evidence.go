package model

import "time"

// Evidence file types as stored in evidence_files.file_type.
const (
    FilePaymentProof     = "PAYMENT_PROOF"
    FileShippingReceipt  = "SHIPPING_RECEIPT"
    FileIdentityDocument = "IDENTITY_DOCUMENT"
)

// Evidence file review states.  A VERIFIED or REJECTED record is
// immutable; the status leaves PENDING exactly once.
const (
    EvidencePending  = "PENDING"
    EvidenceVerified = "VERIFIED"
    EvidenceRejected = "REJECTED"
)

// ValidFileType reports whether s names a known evidence type.
func ValidFileType(s string) bool {
    return s == FilePaymentProof || s == FileShippingReceipt || s == FileIdentityDocument
}

// EvidenceFile is an uploaded proof bound to a transaction.  The core
// stores only the opaque BlobRef plus metadata; bytes live in the blob
// store.
type EvidenceFile struct {
    ID            uint64     // evidence_files.id
    TransactionID uint64     // evidence_files.transaction_id
    FileType      string     // evidence_files.file_type
    FileName      string     // evidence_files.file_name
    BlobRef       string     // evidence_files.blob_ref
    SizeBytes     int64      // evidence_files.size_bytes
    MimeType      string     // evidence_files.mime_type
    UploaderRole  string     // evidence_files.uploader_role (BUYER or SELLER)
    Status        string     // evidence_files.status
    VerifiedBy    *uint64    // evidence_files.verified_by (arbiter id, nullable)
    VerifiedAt    *time.Time // evidence_files.verified_at (nullable)
    RejectReason  *string    // evidence_files.rejection_reason (nullable)
    CreatedAt     time.Time  // evidence_files.created_at
}

// VerificationStep identifies which transaction transition an evidence
// type drives when reviewed.  IDENTITY_DOCUMENT is informational only
// and never drives a transition.
type VerificationStep int

const (
    StepNone VerificationStep = iota // informational, no transition
    StepPayment
    StepShipping
)

// routeByType is the explicit routing table from evidence type to the
// matching state machine operation pair.
var routeByType = map[string]VerificationStep{
    FilePaymentProof:     StepPayment,
    FileShippingReceipt:  StepShipping,
    FileIdentityDocument: StepNone,
}

// RouteFileType returns the verification step an evidence type routes
// to.  Unknown types route to StepNone.
func RouteFileType(fileType string) VerificationStep {
    return routeByType[fileType]
}

// uploadRules describes, per evidence type, the transaction statuses
// that accept a new upload, the status the upload advances to, and the
// slot role allowed to upload it.
var uploadRules = map[string]struct {
    from map[string]bool
    to   string
    role string
}{
    FilePaymentProof: {
        from: map[string]bool{StatusPendingPayment: true, StatusPaymentRejected: true},
        to:   StatusAwaitingPaymentReview,
        role: RoleBuyer,
    },
    FileShippingReceipt: {
        from: map[string]bool{StatusPaid: true, StatusShippingRejected: true},
        to:   StatusAwaitingShippingReview,
        role: RoleSeller,
    },
}

// ApplyUpload validates that an evidence upload of fileType by
// uploaderRole is legal for the transaction's current status and
// advances the status where the type demands it.  IDENTITY_DOCUMENT is
// accepted from either role in any non-terminal state and leaves the
// status untouched.  A status already sitting at the type's awaiting
// state means a file of that type is still under review, so the retry
// is reported as ErrEvidenceAlreadyPending rather than ErrWrongType.
func (t *Transaction) ApplyUpload(fileType, uploaderRole string) error {
    if TerminalStatus(t.Status) {
        return ErrTerminalStatus
    }
    if fileType == FileIdentityDocument {
        return nil
    }
    rule, ok := uploadRules[fileType]
    if !ok {
        return ErrWrongType
    }
    if uploaderRole != rule.role {
        if rule.role == RoleBuyer {
            return ErrNotBuyer
        }
        return ErrNotSeller
    }
    if !rule.from[t.Status] {
        if t.Status == rule.to {
            return ErrEvidenceAlreadyPending
        }
        return ErrWrongType
    }
    t.Status = rule.to
    return nil
}

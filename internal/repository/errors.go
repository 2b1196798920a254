// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and the escrow services to distinguish between different
// failure scenarios. For example, ErrForbidden indicates that the
// current caller is not authorized to operate on a resource, while
// ErrDuplicate signals that an insert lost to a storage-level unique
// constraint (the lost-race case for slot assignment and pending
// evidence).
package repository

import (
    "errors"

    "github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because
// of conflicting state, such as resetting a room that still has an
// active transaction. Handlers should translate this into an HTTP
// 409 response.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when an insert violates a unique key.
// Callers that implement retry-on-conflict (the occupancy manager)
// inspect this value to distinguish a lost race from other failures.
var ErrDuplicate = errors.New("duplicate key")

// Not-found sentinels, one per aggregate. These are integrity
// violations from the caller's perspective and are never retried.
var (
    ErrRoomNotFound     = errors.New("room not found")
    ErrOccupantNotFound = errors.New("occupant not found")
    ErrTxnNotFound      = errors.New("transaction not found")
    ErrEvidenceNotFound = errors.New("evidence file not found")
    ErrEmailExists      = errors.New("email already exists")
)

// isDuplicateKey reports whether err is a MySQL duplicate-entry error
// (ER_DUP_ENTRY, code 1062) raised by a unique constraint.
func isDuplicateKey(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == 1062
}

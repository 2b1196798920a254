package model

import "time"

// Room status values as stored in the rooms.status column.  A room is
// FREE while no slot is occupied and IN_USE from the moment the buyer
// slot is filled, even before a seller joins.
const (
    RoomStatusFree  = "FREE"
    RoomStatusInUse = "IN_USE"
)

// Room is a two-slot container pairing a buyer and a seller for one
// escrow transaction at a time.  Rooms are provisioned by an arbiter
// and carry an expiry after which no further joins are accepted.
//
// Fields:
//  ID         – primary key identifier.
//  RoomNumber – human-facing display number, unique across rooms.
//  Status     – FREE or IN_USE (see constants above).
//  ExpiresAt  – no joins are accepted after this instant.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Room struct {
    ID         uint64    // rooms.id
    RoomNumber string    // rooms.room_number
    Status     string    // rooms.status
    ExpiresAt  time.Time // rooms.expires_at
    CreatedAt  time.Time // rooms.created_at
    UpdatedAt  time.Time // rooms.updated_at
}

// Expired reports whether the room can no longer be joined at the given
// instant.  Comparisons are performed in UTC.
func (r *Room) Expired(now time.Time) bool {
    return !r.ExpiresAt.IsZero() && !now.UTC().Before(r.ExpiresAt)
}

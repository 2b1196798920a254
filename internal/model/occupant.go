package model

import "time"

// Occupant roles as stored in room_occupants.role.  A room has at most
// one occupant per role; the pair (room_id, role) is unique at the
// storage layer.
const (
    RoleBuyer  = "BUYER"
    RoleSeller = "SELLER"
)

// ValidRole reports whether s names a joinable slot role.
func ValidRole(s string) bool {
    return s == RoleBuyer || s == RoleSeller
}

// Occupant is a participant bound to one slot of a room.  Occupants are
// created on join and removed on leave or arbiter reset; removal of the
// last occupant returns the room to FREE.
//
// Fields:
//  ID               – primary key identifier.
//  RoomID           – room whose slot this occupant holds.
//  Role             – BUYER or SELLER.
//  DisplayName      – name shown to the counterparty and the arbiter.
//  Contact          – reachable contact detail; also serves as the
//                     participant's identity across rooms.
//  SessionTokenHash – SHA-256 of the opaque session token issued on join.
//  IsOnline         – presence flag maintained by the heartbeat endpoint.
//  JoinedAt         – when the slot was assigned.
//  LastSeenAt       – last authenticated request from this occupant.
type Occupant struct {
    ID               uint64    // room_occupants.id
    RoomID           uint64    // room_occupants.room_id
    Role             string    // room_occupants.role
    DisplayName      string    // room_occupants.display_name
    Contact          string    // room_occupants.contact
    SessionTokenHash string    // room_occupants.session_token_hash
    IsOnline         bool      // room_occupants.is_online
    JoinedAt         time.Time // room_occupants.joined_at
    LastSeenAt       time.Time // room_occupants.last_seen_at
}

// CanAssign decides whether a participant identified by contact may take
// the given role in a room that currently holds the listed occupants.
// The buyer slot must be filled before the seller slot.  The decision is
// pure; the storage layer re-enforces slot uniqueness with a constraint
// so a lost race still resolves to exactly one winner.
func CanAssign(existing []Occupant, role, contact string) error {
    var hasBuyer, hasSeller bool
    for _, o := range existing {
        if o.Contact == contact {
            return ErrDuplicateRole
        }
        switch o.Role {
        case RoleBuyer:
            hasBuyer = true
        case RoleSeller:
            hasSeller = true
        }
    }
    switch role {
    case RoleBuyer:
        if hasBuyer {
            return ErrRoleUnavailable
        }
    case RoleSeller:
        if !hasBuyer || hasSeller {
            return ErrRoleUnavailable
        }
    default:
        return ErrRoleUnavailable
    }
    return nil
}

package model

import "time"

// Arbiter is the trusted third party authorized to verify evidence and
// release funds.  The identity exists purely for attribution and
// authorization; it takes no part in the state machine itself.
type Arbiter struct {
    ID           uint64    // arbiters.id
    Email        string    // arbiters.email
    PasswordHash string    // arbiters.password_hash (bcrypt)
    DisplayName  string    // arbiters.display_name
    CreatedAt    time.Time // arbiters.created_at
    UpdatedAt    time.Time // arbiters.updated_at
}

// Package escrow implements the core services of the escrow room
// system: the occupancy manager, the transaction lifecycle service, the
// evidence verification gateway and the fund release authority.  Each
// service wraps every mutating operation in a single database
// transaction, writes one audit entry inside that transaction, and
// emits a semantic event only after the commit succeeds.
package escrow

import (
    "context"
    "log"
    "time"

    "github.com/iliyamo/escrow-room-service/internal/queue"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// EventPublisher delivers a semantic event to the notification
// collaborator.  Publishing happens strictly after commit; a delivery
// failure never unwinds the committed operation.
type EventPublisher func(ctx context.Context, ev queue.RoomEvent) error

// emit publishes an event if a publisher is configured.  Failures are
// logged and swallowed: the state change already committed.
func emit(ctx context.Context, publish EventPublisher, ev queue.RoomEvent) {
    if publish == nil {
        return
    }
    ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
    if err := publish(ctx, ev); err != nil {
        log.Printf("escrow: publish %s event failed: %v", ev.Event, err)
    }
}

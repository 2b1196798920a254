package escrow

import (
	"context"
	"strings"

	"github.com/iliyamo/escrow-room-service/internal/model"
	"github.com/iliyamo/escrow-room-service/internal/repository"
)

// ReleaseAuthority is the single entry point for paying out a
// transaction.  It validates the arbiter identity before delegating to
// the lifecycle service, whose GOODS_RECEIVED status guard makes a
// repeated release fail with ErrNotReadyForRelease.
type ReleaseAuthority struct {
	lifecycle *LifecycleService
	arbiters  *repository.ArbiterRepo
}

// NewReleaseAuthority constructs a ReleaseAuthority.
func NewReleaseAuthority(lifecycle *LifecycleService, arbiters *repository.ArbiterRepo) *ReleaseAuthority {
	return &ReleaseAuthority{lifecycle: lifecycle, arbiters: arbiters}
}

// Release finalizes the room's active transaction.  The arbiter is
// re-resolved from storage so a revoked account cannot release funds on
// the strength of a still-valid token.
func (a *ReleaseAuthority) Release(ctx context.Context, roomID, arbiterID uint64, notes string) (*model.Transaction, error) {
	arbiter, err := a.arbiters.GetByID(ctx, arbiterID)
	if err != nil {
		return nil, err
	}
	return a.lifecycle.ReleaseFunds(ctx, roomID, arbiter, strings.TrimSpace(notes))
}

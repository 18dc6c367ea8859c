package transfer

import (
	"fmt"

	"github.com/beamdrop/beamdrop/internal/models"
)

// transitions is the lifecycle graph: for each state, the set of states it
// may move to. Anything absent is rejected. COMPLETED, FAILED and CANCELLED
// have no entries, they are terminal.
//
// Policy note: a transfer that is ACCEPTED but not yet TRANSFERRING can
// still be cancelled; refusing would strand transfers whose sender never
// starts sending.
var transitions = map[models.TransferStatus][]models.TransferStatus{
	models.StatusPending: {
		models.StatusAccepted,
		models.StatusCancelled,
		models.StatusFailed,
	},
	models.StatusAccepted: {
		models.StatusTransferring,
		models.StatusCancelled,
		models.StatusFailed,
	},
	models.StatusTransferring: {
		models.StatusCompleted,
		models.StatusFailed,
		models.StatusCancelled,
	},
}

// CanTransition reports whether the lifecycle graph allows from → to.
func CanTransition(from, to models.TransferStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns a descriptive ErrInvalidTransition when the
// graph forbids from → to.
func checkTransition(from, to models.TransferStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

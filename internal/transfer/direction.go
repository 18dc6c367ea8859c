package transfer

import (
	"fmt"

	"github.com/beamdrop/beamdrop/internal/models"
)

// direction pins down who authors and who fetches a signal type. Both the
// post and fetch paths consult this table; it is the single place the
// offer/answer flow is encoded.
type direction struct {
	author  Role
	fetcher Role
}

var directions = map[models.SignalType]direction{
	models.SignalOffer:  {author: RoleSender, fetcher: RoleRecipient},
	models.SignalAnswer: {author: RoleRecipient, fetcher: RoleSender},
	// ice-candidate is intentionally absent: it flows both ways.
}

// checkPostDirection rejects an offer authored by the recipient or an
// answer authored by the sender. Candidates pass through.
func checkPostDirection(st models.SignalType, role Role) error {
	d, ok := directions[st]
	if !ok || d.author == role {
		return nil
	}
	return fmt.Errorf("%w: %s cannot send %s signals", ErrInvalidRequest, role, st)
}

// checkFetchDirection rejects fetching a signal type authored by the
// caller's own role.
func checkFetchDirection(st models.SignalType, role Role) error {
	d, ok := directions[st]
	if !ok || d.fetcher == role {
		return nil
	}
	return fmt.Errorf("%w: %s cannot request %s signals", ErrInvalidRequest, role, st)
}

// authorRole returns the role that authors signals of type st, and false
// for types either side may author.
func authorRole(st models.SignalType) (Role, bool) {
	d, ok := directions[st]
	if !ok {
		return "", false
	}
	return d.author, true
}

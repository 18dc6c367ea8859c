package transfer

import (
	"errors"
	"testing"

	"github.com/beamdrop/beamdrop/internal/models"
)

func TestFetchDirection(t *testing.T) {
	tests := []struct {
		st     models.SignalType
		role   Role
		wantOK bool
	}{
		{models.SignalOffer, RoleRecipient, true},
		{models.SignalOffer, RoleSender, false},
		{models.SignalAnswer, RoleSender, true},
		{models.SignalAnswer, RoleRecipient, false},
		{models.SignalCandidate, RoleSender, true},
		{models.SignalCandidate, RoleRecipient, true},
	}

	for _, tc := range tests {
		err := checkFetchDirection(tc.st, tc.role)
		if tc.wantOK && err != nil {
			t.Errorf("checkFetchDirection(%s, %s): unexpected %v", tc.st, tc.role, err)
		}
		if !tc.wantOK && !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("checkFetchDirection(%s, %s): want ErrInvalidRequest, got %v", tc.st, tc.role, err)
		}
	}
}

func TestPostDirection(t *testing.T) {
	tests := []struct {
		st     models.SignalType
		role   Role
		wantOK bool
	}{
		{models.SignalOffer, RoleSender, true},
		{models.SignalOffer, RoleRecipient, false},
		{models.SignalAnswer, RoleRecipient, true},
		{models.SignalAnswer, RoleSender, false},
		{models.SignalCandidate, RoleSender, true},
		{models.SignalCandidate, RoleRecipient, true},
	}

	for _, tc := range tests {
		err := checkPostDirection(tc.st, tc.role)
		if tc.wantOK && err != nil {
			t.Errorf("checkPostDirection(%s, %s): unexpected %v", tc.st, tc.role, err)
		}
		if !tc.wantOK && !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("checkPostDirection(%s, %s): want ErrInvalidRequest, got %v", tc.st, tc.role, err)
		}
	}
}

func TestAuthorRole(t *testing.T) {
	if role, ok := authorRole(models.SignalOffer); !ok || role != RoleSender {
		t.Errorf("offer author = %s, %v", role, ok)
	}
	if role, ok := authorRole(models.SignalAnswer); !ok || role != RoleRecipient {
		t.Errorf("answer author = %s, %v", role, ok)
	}
	if _, ok := authorRole(models.SignalCandidate); ok {
		t.Error("ice-candidate should have no fixed author")
	}
}

package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSystemUser(t *testing.T) {
	if _, err := uuid.Parse(SystemUserID); err != nil {
		t.Fatalf("system user id is not a uuid: %v", err)
	}

	u := NewSystemUser(time.Now())
	if !u.IsSystem() || u.Email != SystemUserEmail || !u.Balance.IsZero() {
		t.Fatalf("unexpected system user: %+v", u)
	}
	if u.Role.CanAdminister() {
		t.Fatalf("system user must not carry admin rights: %s", u.Role)
	}
}

func TestRole(t *testing.T) {
	if !RoleAdmin.IsValid() || !RoleMember.IsValid() {
		t.Fatal("expected admin and member to be valid")
	}
	if Role("viewer").IsValid() {
		t.Fatal("expected viewer to be invalid")
	}
	if RoleMember.CanAdminister() || !RoleAdmin.CanAdminister() {
		t.Fatal("unexpected CanAdminister result")
	}
}

func TestNewOverflowBlock(t *testing.T) {
	n := 0
	newID := func() string {
		n++
		return string(rune('a' + n))
	}
	now := time.Now()

	block := NewOverflowBlock(newID, SystemUserID, 10, 1, now)
	if len(block) != 10 {
		t.Fatalf("expected 10 batches, got %d", len(block))
	}
	for i, b := range block {
		if !b.Overflow || b.OwnerID != SystemUserID || b.RemainingInvites != 1 || !b.IsEligible() {
			t.Fatalf("unexpected batch %d: %+v", i, b)
		}
		if i > 0 && !b.CreatedAt.After(block[i-1].CreatedAt) {
			t.Fatalf("batch %d not created after batch %d", i, i-1)
		}
	}
}

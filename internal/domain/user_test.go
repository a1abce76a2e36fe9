package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestUpgradeSubscription_RecordsTransitionEvent(t *testing.T) {
	user := &User{ID: uuid.New(), Name: "Ana", Email: "ana@example.com", Role: RoleNoPlan}

	if err := user.UpgradeSubscription(RolePremium); err != nil {
		t.Fatalf("UpgradeSubscription returned error: %v", err)
	}
	if user.Role != RolePremium {
		t.Fatalf("expected PREMIUM role, got %s", user.Role)
	}

	events := user.DrainEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	upgraded, ok := events[0].(UserSubscriptionUpgradedEvent)
	if !ok {
		t.Fatalf("expected UserSubscriptionUpgradedEvent, got %T", events[0])
	}
	if upgraded.Type() != EventTypeSubscriptionUpgraded {
		t.Fatalf("unexpected event type %q", upgraded.Type())
	}
	if upgraded.PreviousRole != RoleNoPlan || upgraded.NewRole != RolePremium {
		t.Fatalf("expected NO_PLAN -> PREMIUM transition, got %s -> %s", upgraded.PreviousRole, upgraded.NewRole)
	}
	if upgraded.UserID != user.ID {
		t.Fatal("upgrade event does not reference the user")
	}
}

func TestUpgradeSubscription_FailsForUnsavedUser(t *testing.T) {
	user := &User{Name: "Ghost", Email: "ghost@example.com", Role: RoleNoPlan}

	err := user.UpgradeSubscription(RoleBasic)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if user.Role != RoleNoPlan {
		t.Fatalf("expected role to remain NO_PLAN, got %s", user.Role)
	}
	if len(user.PeekEvents()) != 0 {
		t.Fatal("expected no event for a failed upgrade")
	}
}

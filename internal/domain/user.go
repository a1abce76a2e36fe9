/**
 * @description
 * This file defines the User aggregate for the account context. The
 * transaction-service only touches the slice of the user it needs: identity,
 * profile basics, and the subscription role. Role changes go through
 * UpgradeSubscription so that every change records an event describing the
 * transition.
 */

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserRole is the user's subscription tier.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RolePremium UserRole = "PREMIUM"
	RoleBasic   UserRole = "BASIC"
	RoleNoPlan  UserRole = "NO_PLAN"
)

// User is the aggregate root of the account context. A zero ID means the
// entity has not been persisted yet.
type User struct {
	AggregateRoot

	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpgradeSubscription changes the user's role and records a
// UserSubscriptionUpgradedEvent capturing the previous and new role. A user
// without a durable identity cannot be upgraded: the resulting event would
// reference an id that does not exist.
func (u *User) UpgradeSubscription(newRole UserRole) error {
	if u.ID == uuid.Nil {
		return fmt.Errorf("%w: cannot upgrade subscription of unsaved user", ErrInvalidState)
	}

	previousRole := u.Role
	u.Role = newRole
	u.UpdatedAt = time.Now().UTC()

	u.Record(UserSubscriptionUpgradedEvent{
		BaseEvent:    newBaseEvent(EventTypeSubscriptionUpgraded),
		UserID:       u.ID,
		PreviousRole: previousRole,
		NewRole:      newRole,
	})
	return nil
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

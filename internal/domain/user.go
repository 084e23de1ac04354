package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SystemUserEmail is the email of the account that owns overflow batches.
const SystemUserEmail = "system@invites.local"

// SystemUserID is the reserved id of the system account. It is derived from a
// fixed name so every process and every store agrees on it.
var SystemUserID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("invitequeue:system")).String()

// User is a participant of the invite chain. Balance accumulates seller
// proceeds and is only ever changed by relative increments.
type User struct {
	ID            string
	Email         string
	Role          Role
	Balance       decimal.Decimal
	PayoutAccount string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsSystem reports whether u is the reserved system account.
func (u *User) IsSystem() bool {
	return u.ID == SystemUserID
}

// NewSystemUser builds the system account record.
func NewSystemUser(now time.Time) *User {
	return &User{
		ID:        SystemUserID,
		Email:     SystemUserEmail,
		Role:      RoleMember,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Role represents a user's access level
type Role string

const (
	// RoleAdmin can manage settings, users and reconciliation
	RoleAdmin Role = "admin"

	// RoleMember can buy invites and view their own account
	RoleMember Role = "member"
)

var validRoles = map[Role]bool{
	RoleAdmin:  true,
	RoleMember: true,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// CanAdminister checks if the role can use admin endpoints
func (r Role) CanAdminister() bool {
	return r == RoleAdmin
}

// Authentication errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInsufficientRole = errors.New("insufficient role for this operation")
)

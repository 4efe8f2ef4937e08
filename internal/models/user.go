package models

import "time"

type AccountRole string

const (
	RoleMember AccountRole = "member"
	RoleStaff  AccountRole = "staff"
	RoleAdmin  AccountRole = "admin"
)

// Identity is the minimal record owned by the identity backend. It is
// read-only after creation; only the registration rollback deletes one.
type Identity struct {
	ID         string
	Email      string
	CreatedAt  time.Time
	AvatarHint string
}

// Profile is application-owned user data keyed by identity id. A missing
// profile is an expected state for fresh social-login accounts.
type Profile struct {
	IdentityID string
	Username   string
	FullName   string
	Bio        string
	Role       AccountRole
	AvatarRef  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EnrichedUser is the merged identity+profile view published in session
// state. Only the profile enricher constructs these.
type EnrichedUser struct {
	ID        string
	Email     string
	CreatedAt time.Time
	Username  string
	FullName  string
	Bio       string
	Role      AccountRole
	AvatarRef string
}

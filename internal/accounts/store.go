package accounts

import (
	"context"
	"time"
)

// Store describes persistence operations required by the accounts subsystem.
// Lookups that find nothing return ErrNotFound; unique violations return ErrConflict.
type Store interface {
	Users() UserStore
	Sessions() SessionStore
	Organizations() OrganizationStore
	Memberships() MembershipStore
	Roles() RoleStore
	Digests() DigestStore

	// WithinTx runs fn against a transactional view of the store. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// UserStore manages users.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// SessionStore manages sessions. Sessions are never deleted.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	FindByCookie(ctx context.Context, cookie string) (*Session, error)
	// ListActive returns sessions with status Active expiring strictly after now.
	ListActive(ctx context.Context, userID string, now time.Time) ([]*Session, error)
	UpdateStatus(ctx context.Context, id string, status SessionStatus, actor string, at time.Time) error
	// RevokeAllByUser revokes every active session of a user and returns how many changed.
	RevokeAllByUser(ctx context.Context, userID, actor string, at time.Time) (int, error)
}

// OrganizationStore manages organizations.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Update(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	ExistsByURLName(ctx context.Context, urlName string) (bool, error)
}

// MembershipStore manages memberships.
type MembershipStore interface {
	Create(ctx context.Context, m *Membership) error
	Update(ctx context.Context, m *Membership) error
	Delete(ctx context.Context, id string) error
	Find(ctx context.Context, id string) (*Membership, error)
	FindByOrgAndUser(ctx context.Context, orgID, userID string) (*Membership, error)
	ExistsByOrgAndUser(ctx context.Context, orgID, userID string) (bool, error)
	// ListByUser returns the memberships of a user ordered by id.
	ListByUser(ctx context.Context, userID string) ([]*Membership, error)
	CountByOrgAndRole(ctx context.Context, orgID, roleID string) (int, error)
	// CountActiveByOrgAndRole counts active holders of a role. Inside a
	// transaction the counted rows stay locked until it ends, so two
	// concurrent removals of different holders cannot both pass a check.
	CountActiveByOrgAndRole(ctx context.Context, orgID, roleID string) (int, error)
	// ListMembers joins users, roles and the outstanding invite token of
	// pending members. search filters case-insensitively over first name,
	// last name and email when non-empty.
	ListMembers(ctx context.Context, orgID, search string) ([]MemberView, error)
}

// RoleStore manages roles.
type RoleStore interface {
	Create(ctx context.Context, r *Role) error
	Update(ctx context.Context, r *Role) error
	Delete(ctx context.Context, id string) error
	Find(ctx context.Context, id string) (*Role, error)
	FindGlobalByName(ctx context.Context, name string) (*Role, error)
	ExistsByNameInOrg(ctx context.Context, orgID, name string) (bool, error)
	// ListForOrg returns global roles followed by roles owned by orgID.
	ListForOrg(ctx context.Context, orgID string) ([]*Role, error)
}

// DigestStore manages single-use tokens.
type DigestStore interface {
	Create(ctx context.Context, d *Digest) error
	Delete(ctx context.Context, id string) error
	// FindByToken locks the row when called inside a transaction so that
	// concurrent redemptions of one token serialise.
	FindByToken(ctx context.Context, token string) (*Digest, error)
	// FindByEntity returns the most recent digest of kind for entityID.
	FindByEntity(ctx context.Context, kind DigestKind, entityID string) (*Digest, error)
}

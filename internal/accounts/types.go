package accounts

import (
	"regexp"
	"strings"
	"time"
)

// Audit carries who touched a record and when. It is set explicitly by the
// operation that mutates the record.
type Audit struct {
	CreatedBy  string
	CreatedAt  time.Time
	ModifiedBy string
	ModifiedAt time.Time
}

func (a *Audit) stampCreated(actor string, now time.Time) {
	a.CreatedBy, a.CreatedAt = actor, now
	a.ModifiedBy, a.ModifiedAt = actor, now
}

func (a *Audit) stampModified(actor string, now time.Time) {
	a.ModifiedBy, a.ModifiedAt = actor, now
}

// UserStatus is the verification state of a user.
type UserStatus int

const (
	UserCreated UserStatus = 0
	UserActive  UserStatus = 1
)

// ShadowPassword marks an account created by an invitation that has not been claimed.
// It is never a valid hash, so no password verifies against it.
const ShadowPassword = "shadow-user-placeholder"

// User is an identity record.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	MobileNumber string
	Country      string
	TimeZone     string
	Source       string
	Status       UserStatus
	MFAEnabled   bool
	Audit
}

// IsShadow reports whether the user was created ahead of registration by an invite.
func (u *User) IsShadow() bool {
	return u.PasswordHash == ShadowPassword && u.Status == UserCreated
}

// SessionStatus is the liveness flag of a session.
type SessionStatus int

const (
	SessionRevoked SessionStatus = 0
	SessionActive  SessionStatus = 1
)

// Session is an opaque bearer credential bound to a user and a device.
type Session struct {
	ID         string
	UserID     string
	Cookie     string
	Status     SessionStatus
	ExpiresAt  time.Time
	Browser    string
	DeviceOS   string
	DeviceName string
	MachineIP  string
	Audit
}

// ValidAt reports whether the session authenticates at instant now.
func (s *Session) ValidAt(now time.Time) bool {
	return s.Status == SessionActive && now.Before(s.ExpiresAt)
}

// Device describes the client a session was created from.
type Device struct {
	IP        string
	UserAgent string
	Browser   string
	OS        string
	Name      string
}

// OrgStatus of an organization.
type OrgStatus int

const (
	OrgInactive OrgStatus = 0
	OrgActive   OrgStatus = 1
)

// Organization is a tenant boundary.
type Organization struct {
	ID            string
	Name          string
	URLName       string
	Status        OrgStatus
	Website       string
	EmployeeCount int
	Description   string
	Audit
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]`)

// Slugify derives an organization url name from its display name.
func Slugify(name string) string {
	return slugStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// MembershipStatus is the activation state of a membership.
type MembershipStatus int

const (
	MembershipPending MembershipStatus = 0
	MembershipActive  MembershipStatus = 1
)

// Membership binds a user to an organization with a role.
type Membership struct {
	ID          string
	OrgID       string
	UserID      string
	RoleID      string
	Status      MembershipStatus
	IsDefault   bool
	Designation string
	Audit
}

// Role names seeded as protected system roles.
const (
	RoleSuperAdmin = "Super Admin"
	RoleAdmin      = "Admin"
)

// Role is a global (OrgID nil) or organization-scoped role.
type Role struct {
	ID          string
	Name        string
	Description string
	OrgID       *string
	// Protected roles must always keep at least one holder in every organization.
	Protected bool
	Audit
}

// IsSystem reports whether the role is global and therefore immutable.
func (r *Role) IsSystem() bool { return r.OrgID == nil }

// usableIn reports whether the role can be assigned inside orgID.
func (r *Role) usableIn(orgID string) bool {
	return r.OrgID == nil || *r.OrgID == orgID
}

// MemberView is the flattened projection returned by member listings.
type MemberView struct {
	MembershipID string           `json:"id"`
	Email        string           `json:"userEmail"`
	RoleName     string           `json:"roleName"`
	Designation  string           `json:"designation"`
	FirstName    string           `json:"firstName"`
	LastName     string           `json:"lastName"`
	Status       MembershipStatus `json:"status"`
	CreatedAt    time.Time        `json:"createdTime"`
	RoleID       string           `json:"roleId"`
	InviteToken  string           `json:"inviteToken,omitempty"`
}

// OrgSummary pairs an organization with the caller's membership in it.
type OrgSummary struct {
	Organization Organization
	Membership   Membership
	RoleName     string
}

// InitData is the bootstrap payload a client loads after signing in.
type InitData struct {
	User                *User
	DefaultOrganization *OrgSummary
	OtherOrganizations  []OrgSummary
}

// InvitationDetails describes an outstanding invitation to its recipient.
type InvitationDetails struct {
	MembershipID string
	OrgID        string
	OrgName      string
	Email        string
	FirstName    string
	LastName     string
	RoleName     string
	IsNewUser    bool
	Status       MembershipStatus
	ExpiresAt    time.Time
}

// Profile carries optional user fields; nil pointers are left untouched.
type Profile struct {
	FirstName    *string
	LastName     *string
	MobileNumber *string
	Country      *string
	TimeZone     *string
	MFAEnabled   *bool
}

// Registration is the input of Register.
type Registration struct {
	Email        string
	Password     string
	FirstName    string
	LastName     string
	MobileNumber string
	Country      string
	TimeZone     string
	Source       string
}

// OrgInput carries organization fields for create and update.
type OrgInput struct {
	Name          string
	Website       string
	EmployeeCount int
	Description   string
}

// MemberUpdate carries optional membership changes; nil pointers are left untouched.
type MemberUpdate struct {
	RoleID      *string
	Designation *string
	FirstName   *string
	LastName    *string
}

// RoleInput carries fields for custom role create and update.
type RoleInput struct {
	Name        string
	Description string
}

package httpapi

import (
	"time"

	"nrkgo.com/accounts/internal/accounts"
)

type userResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	MobileNumber string    `json:"mobileNumber,omitempty"`
	Country      string    `json:"country,omitempty"`
	TimeZone     string    `json:"timeZone,omitempty"`
	Status       int       `json:"status"`
	Verified     bool      `json:"verified"`
	MFAEnabled   bool      `json:"mfaEnabled"`
	CreatedAt    time.Time `json:"createdTime"`
}

func toUser(u *accounts.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		MobileNumber: u.MobileNumber,
		Country:      u.Country,
		TimeZone:     u.TimeZone,
		Status:       int(u.Status),
		Verified:     u.Status == accounts.UserActive,
		MFAEnabled:   u.MFAEnabled,
		CreatedAt:    u.CreatedAt,
	}
}

type sessionResponse struct {
	ID         string    `json:"id"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Browser    string    `json:"browser"`
	DeviceOS   string    `json:"deviceOs"`
	DeviceName string    `json:"deviceName"`
	MachineIP  string    `json:"machineIp"`
	CreatedAt  time.Time `json:"createdTime"`
	Current    bool      `json:"current"`
}

func toSession(s *accounts.Session, currentToken string) sessionResponse {
	return sessionResponse{
		ID:         s.ID,
		ExpiresAt:  s.ExpiresAt,
		Browser:    s.Browser,
		DeviceOS:   s.DeviceOS,
		DeviceName: s.DeviceName,
		MachineIP:  s.MachineIP,
		CreatedAt:  s.CreatedAt,
		Current:    currentToken != "" && s.Cookie == currentToken,
	}
}

// authResponse is returned whenever a session is opened. Token lets
// non-browser clients use the bearer header instead of the cookie.
type authResponse struct {
	User      *userResponse `json:"user"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

func toAuth(s *accounts.Session, u *accounts.User) authResponse {
	return authResponse{User: toUser(u), Token: s.Cookie, ExpiresAt: s.ExpiresAt}
}

type orgResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	URLName       string    `json:"urlName"`
	Status        int       `json:"status"`
	Website       string    `json:"website,omitempty"`
	EmployeeCount int       `json:"employeeCount,omitempty"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"createdTime"`
}

func toOrg(o *accounts.Organization) *orgResponse {
	if o == nil {
		return nil
	}
	return &orgResponse{
		ID:            o.ID,
		Name:          o.Name,
		URLName:       o.URLName,
		Status:        int(o.Status),
		Website:       o.Website,
		EmployeeCount: o.EmployeeCount,
		Description:   o.Description,
		CreatedAt:     o.CreatedAt,
	}
}

type membershipResponse struct {
	ID          string `json:"id"`
	OrgID       string `json:"orgId"`
	UserID      string `json:"userId"`
	RoleID      string `json:"roleId,omitempty"`
	Status      int    `json:"status"`
	IsDefault   bool   `json:"isDefault"`
	Designation string `json:"designation,omitempty"`
}

func toMembership(m *accounts.Membership) *membershipResponse {
	if m == nil {
		return nil
	}
	return &membershipResponse{
		ID:          m.ID,
		OrgID:       m.OrgID,
		UserID:      m.UserID,
		RoleID:      m.RoleID,
		Status:      int(m.Status),
		IsDefault:   m.IsDefault,
		Designation: m.Designation,
	}
}

type roleResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	OrgID       *string `json:"orgId"`
	Protected   bool    `json:"protected"`
	System      bool    `json:"system"`
}

func toRole(r *accounts.Role) roleResponse {
	return roleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		OrgID:       r.OrgID,
		Protected:   r.Protected,
		System:      r.IsSystem(),
	}
}

type orgSummaryResponse struct {
	Organization *orgResponse        `json:"organization"`
	Membership   *membershipResponse `json:"membership"`
	RoleName     string              `json:"roleName"`
}

func toSummary(s *accounts.OrgSummary) *orgSummaryResponse {
	if s == nil {
		return nil
	}
	return &orgSummaryResponse{
		Organization: toOrg(&s.Organization),
		Membership:   toMembership(&s.Membership),
		RoleName:     s.RoleName,
	}
}

type initResponse struct {
	User                *userResponse        `json:"user"`
	DefaultOrganization *orgSummaryResponse  `json:"defaultOrganization"`
	OtherOrganizations  []orgSummaryResponse `json:"otherOrganizations"`
}

func toInit(d *accounts.InitData) initResponse {
	out := initResponse{
		User:                toUser(d.User),
		DefaultOrganization: toSummary(d.DefaultOrganization),
		OtherOrganizations:  make([]orgSummaryResponse, 0, len(d.OtherOrganizations)),
	}
	for i := range d.OtherOrganizations {
		out.OtherOrganizations = append(out.OtherOrganizations, *toSummary(&d.OtherOrganizations[i]))
	}
	return out
}

type invitationResponse struct {
	MembershipID string    `json:"membershipId"`
	OrgID        string    `json:"orgId"`
	OrgName      string    `json:"orgName"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	RoleName     string    `json:"roleName"`
	IsNewUser    bool      `json:"isNewUser"`
	Status       int       `json:"status"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func toInvitation(d *accounts.InvitationDetails) invitationResponse {
	return invitationResponse{
		MembershipID: d.MembershipID,
		OrgID:        d.OrgID,
		OrgName:      d.OrgName,
		Email:        d.Email,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		RoleName:     d.RoleName,
		IsNewUser:    d.IsNewUser,
		Status:       int(d.Status),
		ExpiresAt:    d.ExpiresAt,
	}
}

package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nrkgo.com/accounts/internal/audit"
	"nrkgo.com/accounts/internal/ids"
)

// Orgs runs organization lifecycle, invitations and member management.
// A membership moves Pending -> Active once and is otherwise only deleted.
type Orgs struct {
	svc *Service
}

// InviteInput describes who to invite and with which role. FirstName and
// LastName only apply when the email has no account yet.
type InviteInput struct {
	Email       string
	RoleID      string
	Designation string
	FirstName   string
	LastName    string
}

// Invitation is the result of Invite.
type Invitation struct {
	Membership *Membership
	User       *User
	Digest     *Digest
}

// CreateOrganization creates an organization owned by ownerID, who becomes its
// active Super Admin. It becomes the owner's default when they have none.
func (m *Orgs) CreateOrganization(ctx context.Context, ownerID string, in OrgInput) (*Organization, error) {
	var org *Organization
	err := m.svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.Users().Find(ctx, ownerID); err != nil {
			return err
		}
		existing, err := tx.Memberships().ListByUser(ctx, ownerID)
		if err != nil {
			return err
		}
		hasDefault := false
		for _, ms := range existing {
			hasDefault = hasDefault || ms.IsDefault
		}
		org, err = m.provisionOrg(ctx, tx, ownerID, in, !hasDefault)
		return err
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

func (m *Orgs) provisionOrg(ctx context.Context, tx Store, ownerID string, in OrgInput, isDefault bool) (*Organization, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	urlName, err := m.uniqueURLName(ctx, tx, name)
	if err != nil {
		return nil, err
	}
	now := m.svc.now().UTC()
	org := &Organization{
		ID:            ids.New(),
		Name:          name,
		URLName:       urlName,
		Status:        OrgActive,
		Website:       strings.TrimSpace(in.Website),
		EmployeeCount: in.EmployeeCount,
		Description:   strings.TrimSpace(in.Description),
	}
	org.stampCreated(ownerID, now)
	if err := tx.Organizations().Create(ctx, org); err != nil {
		return nil, err
	}
	role, err := m.svc.ensureGlobalRole(ctx, tx, RoleSuperAdmin, ownerID)
	if err != nil {
		return nil, err
	}
	ms := &Membership{
		ID:        ids.New(),
		OrgID:     org.ID,
		UserID:    ownerID,
		RoleID:    role.ID,
		Status:    MembershipActive,
		IsDefault: isDefault,
	}
	ms.stampCreated(ownerID, now)
	if err := tx.Memberships().Create(ctx, ms); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "accounts.org.created", map[string]any{"org_id": org.ID, "owner_id": ownerID})
	return org, nil
}

// uniqueURLName slugs name and appends a short random suffix while the slug is
// taken by another organization.
func (m *Orgs) uniqueURLName(ctx context.Context, tx Store, name string) (string, error) {
	base := Slugify(name)
	candidate := base
	for attempt := 0; attempt < 5; attempt++ {
		taken, err := tx.Organizations().ExistsByURLName(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		id := ids.New()
		candidate = base + "-" + strings.ToLower(id[len(id)-6:])
	}
	return "", fmt.Errorf("%w: organization url name %q", ErrConflict, base)
}

// UpdateOrganization edits an organization. The requester must hold an active
// membership with a protected role. The url name is kept stable.
func (m *Orgs) UpdateOrganization(ctx context.Context, orgID, requesterID string, in OrgInput) (*Organization, error) {
	var org *Organization
	err := m.svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		org, err = tx.Organizations().Find(ctx, orgID)
		if err != nil {
			return err
		}
		if err := m.requireAdmin(ctx, tx, orgID, requesterID); err != nil {
			return err
		}
		if name := strings.TrimSpace(in.Name); name != "" {
			org.Name = name
		}
		org.Website = strings.TrimSpace(in.Website)
		org.EmployeeCount = in.EmployeeCount
		org.Description = strings.TrimSpace(in.Description)
		org.stampModified(requesterID, m.svc.now().UTC())
		return tx.Organizations().Update(ctx, org)
	})
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "accounts.org.updated", map[string]any{"org_id": orgID})
	return org, nil
}

// Invite adds email to the organization as a pending member, creating a shadow
// user when the email has no account, and emails an invite token.
func (m *Orgs) Invite(ctx context.Context, orgID, inviterID string, in InviteInput) (*Invitation, error) {
	svc := m.svc
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	var (
		inv     Invitation
		inviter *User
		org     *Organization
	)
	err = svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		if org, err = tx.Organizations().Find(ctx, orgID); err != nil {
			return err
		}
		if err := m.requireMember(ctx, tx, orgID, inviterID); err != nil {
			return err
		}
		if inviter, err = tx.Users().Find(ctx, inviterID); err != nil {
			return err
		}
		if in.RoleID != "" {
			if err := m.checkRole(ctx, tx, orgID, in.RoleID); err != nil {
				return err
			}
		}
		now := svc.now().UTC()

		user, err := tx.Users().FindByEmail(ctx, email)
		switch {
		case errors.Is(err, ErrNotFound):
			user = &User{
				ID:           ids.New(),
				Email:        email,
				PasswordHash: ShadowPassword,
				FirstName:    strings.TrimSpace(in.FirstName),
				LastName:     strings.TrimSpace(in.LastName),
				TimeZone:     defaultTimeZone,
				Status:       UserCreated,
			}
			user.stampCreated(inviterID, now)
			if err := tx.Users().Create(ctx, user); err != nil {
				return err
			}
		case err != nil:
			return err
		}

		exists, err := tx.Memberships().ExistsByOrgAndUser(ctx, orgID, user.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: user is already a member or invited", ErrConflict)
		}

		ms := &Membership{
			ID:          ids.New(),
			OrgID:       orgID,
			UserID:      user.ID,
			RoleID:      in.RoleID,
			Status:      MembershipPending,
			Designation: strings.TrimSpace(in.Designation),
		}
		ms.stampCreated(inviterID, now)
		if err := tx.Memberships().Create(ctx, ms); err != nil {
			return err
		}
		dg, err := svc.Digests.Issue(ctx, tx, InviteSubject{MembershipID: ms.ID}, inviterID, map[string]string{"email": email})
		if err != nil {
			return err
		}
		inv = Invitation{Membership: ms, User: user, Digest: dg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = audit.LogEvent(ctx, "accounts.member.invited", map[string]any{
		"org_id":        orgID,
		"membership_id": inv.Membership.ID,
		"email":         email,
		"shadow":        inv.User.IsShadow(),
	})
	svc.sendEmail(ctx, "invitation", email, func() (Message, error) {
		return svc.templates.Invitation(inviter, org, email, inv.Digest.Token)
	})
	return &inv, nil
}

// AcceptInvite activates the membership behind an invite token. userID must
// be the invited user.
func (m *Orgs) AcceptInvite(ctx context.Context, token, userID string) (*Membership, error) {
	var ms *Membership
	err := m.svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		dg, err := m.svc.Digests.Redeem(ctx, tx, token, KindInvite)
		if err != nil {
			return err
		}
		if ms, err = m.inviteMembership(ctx, tx, dg); err != nil {
			return err
		}
		if ms.UserID != userID {
			return fmt.Errorf("%w: invitation was issued to another user", ErrForbidden)
		}
		if ms.Status != MembershipPending {
			return fmt.Errorf("%w: invitation already accepted", ErrAlreadyProcessed)
		}
		if err := m.activate(ctx, tx, ms, userID); err != nil {
			return err
		}
		return m.svc.Digests.Consume(ctx, tx, dg)
	})
	if err != nil {
		return nil, err
	}
	return ms, nil
}

// ClaimOrgAccess activates the caller's pending membership in orgID without a
// token. An already active membership is left as is.
func (m *Orgs) ClaimOrgAccess(ctx context.Context, orgID, userID string) error {
	return m.svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		ms, err := tx.Memberships().FindByOrgAndUser(ctx, orgID, userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: no invitation found for this organization", ErrNotFound)
			}
			return err
		}
		if ms.Status != MembershipPending {
			return nil
		}
		return m.activate(ctx, tx, ms, userID)
	})
}

// GetOrGenerateInviteToken returns the live invite token of a pending member,
// issuing a fresh one when none is live. The requester must belong to the
// member's organization.
func (m *Orgs) GetOrGenerateInviteToken(ctx context.Context, requesterID, membershipID string) (string, error) {
	var token string
	err := m.svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		ms, err := tx.Memberships().Find(ctx, membershipID)
		if err != nil {
			return err
		}
		if err := m.requireMember(ctx, tx, ms.OrgID, requesterID); err != nil {
			return err
		}
		if ms.Status != MembershipPending {
			return fmt.Errorf("%w: no invitation link for active member", ErrAlreadyProcessed)
		}
		subject := InviteSubject{MembershipID: ms.ID}
		dg, err := m.svc.Digests.FindActiveByEntity(ctx, tx, subject)
		if err != nil {
			return err
		}
		if dg == nil {
			meta := map[string]string{}
			if u, err := tx.Users().Find(ctx, ms.UserID); err == nil {
				meta["email"] = u.Email
			}
			if dg, err = m.svc.Digests.Issue(ctx, tx, subject, requesterID, meta); err != nil {
				return err
			}
		}
		token = dg.Token
		return nil
	})
	return token, err
}

// ClaimAccount turns the shadow user behind an invite token into a real
// account, activates the membership and signs the user in.
func (m *Orgs) ClaimAccount(ctx context.Context, token, password, firstName, lastName string, dev *Device) (*Session, *User, error) {
	svc := m.svc
	if password == "" {
		return nil, nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := svc.hasher.Hash(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	var (
		sess *Session
		user *User
	)
	err = svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		dg, err := svc.Digests.Redeem(ctx, tx, token, KindInvite)
		if err != nil {
			return err
		}
		ms, err := m.inviteMembership(ctx, tx, dg)
		if err != nil {
			return err
		}
		if ms.Status != MembershipPending {
			return fmt.Errorf("%w: invitation already accepted", ErrAlreadyProcessed)
		}
		if user, err = tx.Users().Find(ctx, ms.UserID); err != nil {
			return err
		}
		if !user.IsShadow() {
			return fmt.Errorf("%w: account already exists, sign in to accept", ErrConflict)
		}
		now := svc.now().UTC()
		user.PasswordHash = hash
		if v := strings.TrimSpace(firstName); v != "" {
			user.FirstName = v
		}
		if v := strings.TrimSpace(lastName); v != "" {
			user.LastName = v
		}
		user.Status = UserActive
		user.stampModified(user.ID, now)
		if err := tx.Users().Update(ctx, user); err != nil {
			return err
		}
		if err := m.activate(ctx, tx, ms, user.ID); err != nil {
			return err
		}
		if sess, err = svc.Sessions.create(ctx, tx, user, dev, "invite_claim"); err != nil {
			return err
		}
		return svc.Digests.Consume(ctx, tx, dg)
	})
	if err != nil {
		return nil, nil, err
	}
	_ = audit.LogEvent(ctx, "accounts.user.verified", map[string]any{"user_id": user.ID, "via": "invite"})
	return sess, user, nil
}

// InvitationDetails describes the invitation behind token without consuming it.
func (m *Orgs) InvitationDetails(ctx context.Context, token string) (*InvitationDetails, error) {
	store := m.svc.store
	dg, err := m.svc.Digests.Redeem(ctx, store, token, KindInvite)
	if err != nil {
		return nil, err
	}
	ms, err := m.inviteMembership(ctx, store, dg)
	if err != nil {
		return nil, err
	}
	org, err := store.Organizations().Find(ctx, ms.OrgID)
	if err != nil {
		return nil, err
	}
	user, err := store.Users().Find(ctx, ms.UserID)
	if err != nil {
		return nil, err
	}
	details := &InvitationDetails{
		MembershipID: ms.ID,
		OrgID:        org.ID,
		OrgName:      org.Name,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		IsNewUser:    user.IsShadow(),
		Status:       ms.Status,
		ExpiresAt:    dg.ExpiresAt,
	}
	if ms.RoleID != "" {
		if role, err := store.Roles().Find(ctx, ms.RoleID); err == nil {
			details.RoleName = role.Name
		}
	}
	return details, nil
}

// SessionFromInvite signs in the existing user an invite token was issued
// to. Shadow users must claim their account first. The token is not consumed.
func (m *Orgs) SessionFromInvite(ctx context.Context, token string, dev *Device) (*Session, *User, error) {
	store := m.svc.store
	dg, err := m.svc.Digests.Redeem(ctx, store, token, KindInvite)
	if err != nil {
		return nil, nil, err
	}
	ms, err := m.inviteMembership(ctx, store, dg)
	if err != nil {
		return nil, nil, err
	}
	user, err := store.Users().Find(ctx, ms.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user.IsShadow() {
		return nil, nil, fmt.Errorf("%w: claim the account before signing in", ErrForbidden)
	}
	sess, err := m.svc.Sessions.create(ctx, store, user, dev, "invite")
	if err != nil {
		return nil, nil, err
	}
	return sess, user, nil
}

// GetOrgMembers lists the members of orgID. The requester must be a member.
func (m *Orgs) GetOrgMembers(ctx context.Context, orgID, requesterID, search string) ([]MemberView, error) {
	store := m.svc.store
	if err := m.requireMember(ctx, store, orgID, requesterID); err != nil {
		return nil, err
	}
	return store.Memberships().ListMembers(ctx, orgID, strings.TrimSpace(search))
}

// UpdateMember changes a member's role, designation or name. Any active
// member may edit designation and name; changing a role takes an administrator.
func (m *Orgs) UpdateMember(ctx context.Context, orgID, membershipID, requesterID string, upd MemberUpdate) (*Membership, error) {
	var ms *Membership
	err := m.svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if err := m.requireMember(ctx, tx, orgID, requesterID); err != nil {
			return err
		}
		var err error
		if ms, err = m.memberOf(ctx, tx, orgID, membershipID); err != nil {
			return err
		}
		now := m.svc.now().UTC()
		if upd.RoleID != nil && *upd.RoleID != ms.RoleID {
			if err := m.requireAdmin(ctx, tx, orgID, requesterID); err != nil {
				return err
			}
			if err := m.checkRole(ctx, tx, orgID, *upd.RoleID); err != nil {
				return err
			}
			if err := m.guardLastHolder(ctx, tx, ms); err != nil {
				return err
			}
			ms.RoleID = *upd.RoleID
		}
		if upd.Designation != nil {
			ms.Designation = strings.TrimSpace(*upd.Designation)
		}
		ms.stampModified(requesterID, now)
		if err := tx.Memberships().Update(ctx, ms); err != nil {
			return err
		}
		if upd.FirstName == nil && upd.LastName == nil {
			return nil
		}
		user, err := tx.Users().Find(ctx, ms.UserID)
		if err != nil {
			return err
		}
		changed := setIf(&user.FirstName, upd.FirstName)
		changed = setIf(&user.LastName, upd.LastName) || changed
		if !changed {
			return nil
		}
		user.stampModified(requesterID, now)
		return tx.Users().Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "accounts.member.updated", map[string]any{"org_id": orgID, "membership_id": membershipID})
	return ms, nil
}

// RemoveMember deletes a membership on behalf of an administrator. The last
// active holder of a protected role in the organization cannot be removed.
func (m *Orgs) RemoveMember(ctx context.Context, orgID, membershipID, requesterID string) error {
	err := m.svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if err := m.requireAdmin(ctx, tx, orgID, requesterID); err != nil {
			return err
		}
		ms, err := m.memberOf(ctx, tx, orgID, membershipID)
		if err != nil {
			return err
		}
		if err := m.guardLastHolder(ctx, tx, ms); err != nil {
			return err
		}
		return tx.Memberships().Delete(ctx, ms.ID)
	})
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "accounts.member.removed", map[string]any{"org_id": orgID, "membership_id": membershipID})
	return nil
}

// guardLastHolder rejects taking a protected role away from its only active
// holder. Pending memberships never count as holders.
func (m *Orgs) guardLastHolder(ctx context.Context, tx Store, ms *Membership) error {
	if ms.RoleID == "" || ms.Status != MembershipActive {
		return nil
	}
	role, err := tx.Roles().Find(ctx, ms.RoleID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !role.Protected {
		return nil
	}
	n, err := tx.Memberships().CountActiveByOrgAndRole(ctx, ms.OrgID, role.ID)
	if err != nil {
		return err
	}
	if n <= 1 {
		return fmt.Errorf("%w: organization must retain at least one %s", ErrConflict, role.Name)
	}
	return nil
}

func (m *Orgs) activate(ctx context.Context, tx Store, ms *Membership, actor string) error {
	ms.Status = MembershipActive
	ms.stampModified(actor, m.svc.now().UTC())
	if err := tx.Memberships().Update(ctx, ms); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "accounts.member.activated", map[string]any{
		"org_id":        ms.OrgID,
		"membership_id": ms.ID,
		"user_id":       ms.UserID,
	})
	return nil
}

func (m *Orgs) inviteMembership(ctx context.Context, tx Store, dg *Digest) (*Membership, error) {
	subject, err := dg.Subject()
	if err != nil {
		return nil, err
	}
	inv, ok := subject.(InviteSubject)
	if !ok {
		return nil, fmt.Errorf("%w: not an invite token", ErrInvalidToken)
	}
	ms, err := tx.Memberships().Find(ctx, inv.MembershipID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: invitation record", ErrNotFound)
	}
	return ms, err
}

func (m *Orgs) memberOf(ctx context.Context, tx Store, orgID, membershipID string) (*Membership, error) {
	ms, err := tx.Memberships().Find(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if ms.OrgID != orgID {
		return nil, fmt.Errorf("%w: member does not belong to this organization", ErrInvalidInput)
	}
	return ms, nil
}

// requireMember passes only for an accepted membership; invitees act once
// they have joined.
func (m *Orgs) requireMember(ctx context.Context, tx Store, orgID, userID string) error {
	ms, err := tx.Memberships().FindByOrgAndUser(ctx, orgID, userID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: not a member of this organization", ErrForbidden)
	}
	if err != nil {
		return err
	}
	if ms.Status != MembershipActive {
		return fmt.Errorf("%w: invitation not accepted", ErrForbidden)
	}
	return nil
}

func (m *Orgs) requireAdmin(ctx context.Context, tx Store, orgID, userID string) error {
	ms, err := tx.Memberships().FindByOrgAndUser(ctx, orgID, userID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: not a member of this organization", ErrForbidden)
	}
	if err != nil {
		return err
	}
	if ms.Status != MembershipActive || ms.RoleID == "" {
		return fmt.Errorf("%w: administrator role required", ErrForbidden)
	}
	role, err := tx.Roles().Find(ctx, ms.RoleID)
	if err != nil {
		return err
	}
	if !role.Protected {
		return fmt.Errorf("%w: administrator role required", ErrForbidden)
	}
	return nil
}

// checkRole verifies roleID exists and is global or owned by orgID.
func (m *Orgs) checkRole(ctx context.Context, tx Store, orgID, roleID string) error {
	role, err := tx.Roles().Find(ctx, roleID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: unknown role", ErrInvalidInput)
	}
	if err != nil {
		return err
	}
	if !role.usableIn(orgID) {
		return fmt.Errorf("%w: role does not belong to this organization", ErrInvalidInput)
	}
	return nil
}

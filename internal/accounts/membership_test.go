package accounts_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nrkgo.com/accounts/internal/accounts"
)

func adminRoleID(t *testing.T, f *fixture) string {
	t.Helper()
	role, err := f.store.Roles().FindGlobalByName(context.Background(), accounts.RoleAdmin)
	require.NoError(t, err)
	return role.ID
}

func TestInviteShadowUserAndClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	org := f.defaultOrg(t, owner.ID).Organization

	inv, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{
		Email:       "Newbie@Example.com",
		RoleID:      adminRoleID(t, f),
		Designation: "Engineer",
		FirstName:   "New",
	})
	require.NoError(t, err)
	require.True(t, inv.User.IsShadow())
	require.Equal(t, accounts.MembershipPending, inv.Membership.Status)
	require.Equal(t, inv.Digest.Token, f.mail.last(t, "invite"))
	require.Equal(t, f.clock.Now().Add(7*24*time.Hour), inv.Digest.ExpiresAt)

	st, err := f.svc.Identity.CheckStatus(ctx, "newbie@example.com")
	require.NoError(t, err)
	require.Equal(t, accounts.AccountStatus{Exists: true, Shadow: true}, st)

	_, _, err = f.svc.Identity.Login(ctx, "newbie@example.com", accounts.ShadowPassword, nil)
	require.ErrorIs(t, err, accounts.ErrInvalidCredentials)

	details, err := f.svc.Orgs.InvitationDetails(ctx, inv.Digest.Token)
	require.NoError(t, err)
	require.True(t, details.IsNewUser)
	require.Equal(t, org.Name, details.OrgName)
	require.Equal(t, accounts.RoleAdmin, details.RoleName)

	_, _, err = f.svc.Orgs.SessionFromInvite(ctx, inv.Digest.Token, nil)
	require.ErrorIs(t, err, accounts.ErrForbidden)

	members, err := f.svc.Orgs.GetOrgMembers(ctx, org.ID, owner.ID, "")
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, inv.Digest.Token, members[1].InviteToken)
	require.Empty(t, members[0].InviteToken)

	sess, user, err := f.svc.Orgs.ClaimAccount(ctx, inv.Digest.Token, "claimed-pw", "", "Person", &accounts.Device{IP: "192.0.2.5"})
	require.NoError(t, err)
	require.Equal(t, accounts.UserActive, user.Status)
	require.Equal(t, "New", user.FirstName)
	require.Equal(t, "Person", user.LastName)
	require.Equal(t, "192.0.2.5", sess.MachineIP)

	ms, err := f.store.Memberships().Find(ctx, inv.Membership.ID)
	require.NoError(t, err)
	require.Equal(t, accounts.MembershipActive, ms.Status)

	_, _, err = f.svc.Orgs.ClaimAccount(ctx, inv.Digest.Token, "again", "", "", nil)
	require.ErrorIs(t, err, accounts.ErrNotFound)

	_, _, err = f.svc.Identity.Login(ctx, "newbie@example.com", "claimed-pw", nil)
	require.NoError(t, err)
}

func TestInviteDuplicateIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	org := f.defaultOrg(t, owner.ID).Organization

	_, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: "twice@example.com"})
	require.NoError(t, err)
	_, err = f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: "twice@example.com"})
	require.ErrorIs(t, err, accounts.ErrConflict)

	_, err = f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: owner.Email})
	require.ErrorIs(t, err, accounts.ErrConflict)
}

func TestInviteChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	stranger := f.verifiedUser(t, "stranger@example.com", "pw")
	org := f.defaultOrg(t, owner.ID).Organization
	otherOrg := f.defaultOrg(t, stranger.ID).Organization

	_, err := f.svc.Orgs.Invite(ctx, org.ID, stranger.ID, accounts.InviteInput{Email: "x@example.com"})
	require.ErrorIs(t, err, accounts.ErrForbidden)

	_, err = f.svc.Orgs.Invite(ctx, "missing-org", owner.ID, accounts.InviteInput{Email: "x@example.com"})
	require.ErrorIs(t, err, accounts.ErrNotFound)

	_, err = f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: "x@example.com", RoleID: "missing-role"})
	require.ErrorIs(t, err, accounts.ErrInvalidInput)

	foreign, err := f.svc.Orgs.CreateOrgRole(ctx, otherOrg.ID, stranger.ID, accounts.RoleInput{Name: "Auditor"})
	require.NoError(t, err)
	_, err = f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: "x@example.com", RoleID: foreign.ID})
	require.ErrorIs(t, err, accounts.ErrInvalidInput)

	// Failed attempts left no shadow user behind.
	st, err := f.svc.Identity.CheckStatus(ctx, "x@example.com")
	require.NoError(t, err)
	require.False(t, st.Exists)
}

func TestAcceptInviteExistingUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	guest := f.verifiedUser(t, "guest@example.com", "pw")
	org := f.defaultOrg(t, owner.ID).Organization

	inv, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: guest.Email})
	require.NoError(t, err)
	require.False(t, inv.User.IsShadow())

	_, _, err = f.svc.Orgs.ClaimAccount(ctx, inv.Digest.Token, "pw2", "", "", nil)
	require.ErrorIs(t, err, accounts.ErrConflict)

	sess, u, err := f.svc.Orgs.SessionFromInvite(ctx, inv.Digest.Token, nil)
	require.NoError(t, err)
	require.Equal(t, guest.ID, u.ID)
	require.Equal(t, guest.ID, sess.UserID)

	_, err = f.svc.Orgs.AcceptInvite(ctx, inv.Digest.Token, owner.ID)
	require.ErrorIs(t, err, accounts.ErrForbidden)

	ms, err := f.svc.Orgs.AcceptInvite(ctx, inv.Digest.Token, guest.ID)
	require.NoError(t, err)
	require.Equal(t, accounts.MembershipActive, ms.Status)

	_, err = f.svc.Orgs.AcceptInvite(ctx, inv.Digest.Token, guest.ID)
	require.ErrorIs(t, err, accounts.ErrNotFound)

	data, err := f.svc.Orgs.GetInitData(ctx, guest.ID, org.ID)
	require.NoError(t, err)
	require.Equal(t, org.ID, data.DefaultOrganization.Organization.ID)
	require.Len(t, data.OtherOrganizations, 1)
}

func TestInviteTokenExpiresAfterSevenDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	org := f.defaultOrg(t, owner.ID).Organization

	inv, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: "slow@example.com"})
	require.NoError(t, err)

	f.clock.Advance(7 * 24 * time.Hour)
	_, _, err = f.svc.Orgs.ClaimAccount(ctx, inv.Digest.Token, "pw", "", "", nil)
	require.ErrorIs(t, err, accounts.ErrExpired)

	token, err := f.svc.Orgs.GetOrGenerateInviteToken(ctx, owner.ID, inv.Membership.ID)
	require.NoError(t, err)
	require.NotEqual(t, inv.Digest.Token, token)

	again, err := f.svc.Orgs.GetOrGenerateInviteToken(ctx, owner.ID, inv.Membership.ID)
	require.NoError(t, err)
	require.Equal(t, token, again)

	_, _, err = f.svc.Orgs.ClaimAccount(ctx, token, "pw", "", "", nil)
	require.NoError(t, err)

	_, err = f.svc.Orgs.GetOrGenerateInviteToken(ctx, owner.ID, inv.Membership.ID)
	require.ErrorIs(t, err, accounts.ErrAlreadyProcessed)
}

func TestClaimOrgAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	guest := f.verifiedUser(t, "guest@example.com", "pw")
	org := f.defaultOrg(t, owner.ID).Organization

	err := f.svc.Orgs.ClaimOrgAccess(ctx, org.ID, guest.ID)
	require.ErrorIs(t, err, accounts.ErrNotFound)

	inv, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: guest.Email})
	require.NoError(t, err)
	require.NoError(t, f.svc.Orgs.ClaimOrgAccess(ctx, org.ID, guest.ID))
	require.NoError(t, f.svc.Orgs.ClaimOrgAccess(ctx, org.ID, guest.ID))

	ms, err := f.store.Memberships().Find(ctx, inv.Membership.ID)
	require.NoError(t, err)
	require.Equal(t, accounts.MembershipActive, ms.Status)
}

func TestLastProtectedHolderGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	summary := f.defaultOrg(t, owner.ID)
	org := summary.Organization

	err := f.svc.Orgs.RemoveMember(ctx, org.ID, summary.Membership.ID, owner.ID)
	require.ErrorIs(t, err, accounts.ErrConflict)

	custom, err := f.svc.Orgs.CreateOrgRole(ctx, org.ID, owner.ID, accounts.RoleInput{Name: "Viewer"})
	require.NoError(t, err)
	_, err = f.svc.Orgs.UpdateMember(ctx, org.ID, summary.Membership.ID, owner.ID, accounts.MemberUpdate{RoleID: &custom.ID})
	require.ErrorIs(t, err, accounts.ErrConflict)

	// A pending Super Admin is not a holder yet.
	inv, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{
		Email:  "second@example.com",
		RoleID: summary.Membership.RoleID,
	})
	require.NoError(t, err)
	_, err = f.svc.Orgs.UpdateMember(ctx, org.ID, summary.Membership.ID, owner.ID, accounts.MemberUpdate{RoleID: &custom.ID})
	require.ErrorIs(t, err, accounts.ErrConflict)

	_, second, err := f.svc.Orgs.ClaimAccount(ctx, inv.Digest.Token, "pw", "", "", nil)
	require.NoError(t, err)
	_, err = f.svc.Orgs.UpdateMember(ctx, org.ID, summary.Membership.ID, owner.ID, accounts.MemberUpdate{RoleID: &custom.ID})
	require.NoError(t, err)

	err = f.svc.Orgs.RemoveMember(ctx, org.ID, inv.Membership.ID, second.ID)
	require.ErrorIs(t, err, accounts.ErrConflict)

	// The demoted owner lost the right to remove members.
	err = f.svc.Orgs.RemoveMember(ctx, org.ID, inv.Membership.ID, owner.ID)
	require.ErrorIs(t, err, accounts.ErrForbidden)
}

func TestRemoveOneOfTwoAdmins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	org := f.defaultOrg(t, owner.ID).Organization
	admin := adminRoleID(t, f)

	first, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: "a1@example.com", RoleID: admin})
	require.NoError(t, err)
	_, _, err = f.svc.Orgs.ClaimAccount(ctx, first.Digest.Token, "pw", "", "", nil)
	require.NoError(t, err)
	second, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: "a2@example.com", RoleID: admin})
	require.NoError(t, err)
	_, _, err = f.svc.Orgs.ClaimAccount(ctx, second.Digest.Token, "pw", "", "", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.Orgs.RemoveMember(ctx, org.ID, second.Membership.ID, owner.ID))

	err = f.svc.Orgs.RemoveMember(ctx, org.ID, first.Membership.ID, owner.ID)
	require.ErrorIs(t, err, accounts.ErrConflict)
}

func TestPendingInviteeCannotTakeOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	guest := f.verifiedUser(t, "guest@example.com", "pw")
	summary := f.defaultOrg(t, owner.ID)
	org := summary.Organization
	superAdmin := summary.Membership.RoleID

	inv, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: guest.Email})
	require.NoError(t, err)

	_, err = f.svc.Orgs.UpdateMember(ctx, org.ID, inv.Membership.ID, guest.ID, accounts.MemberUpdate{RoleID: &superAdmin})
	require.ErrorIs(t, err, accounts.ErrForbidden)
	err = f.svc.Orgs.RemoveMember(ctx, org.ID, summary.Membership.ID, guest.ID)
	require.ErrorIs(t, err, accounts.ErrForbidden)
	_, err = f.svc.Orgs.GetOrgMembers(ctx, org.ID, guest.ID, "")
	require.ErrorIs(t, err, accounts.ErrForbidden)
	_, err = f.svc.Orgs.Invite(ctx, org.ID, guest.ID, accounts.InviteInput{Email: "friend@example.com"})
	require.ErrorIs(t, err, accounts.ErrForbidden)

	// Accepting makes guest a plain member: still no role changes or removals.
	_, err = f.svc.Orgs.AcceptInvite(ctx, inv.Digest.Token, guest.ID)
	require.NoError(t, err)
	_, err = f.svc.Orgs.UpdateMember(ctx, org.ID, inv.Membership.ID, guest.ID, accounts.MemberUpdate{RoleID: &superAdmin})
	require.ErrorIs(t, err, accounts.ErrForbidden)
	err = f.svc.Orgs.RemoveMember(ctx, org.ID, summary.Membership.ID, guest.ID)
	require.ErrorIs(t, err, accounts.ErrForbidden)

	designation := "Analyst"
	ms, err := f.svc.Orgs.UpdateMember(ctx, org.ID, inv.Membership.ID, guest.ID, accounts.MemberUpdate{Designation: &designation})
	require.NoError(t, err)
	require.Equal(t, "Analyst", ms.Designation)

	members, err := f.svc.Orgs.GetOrgMembers(ctx, org.ID, owner.ID, "")
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, accounts.RoleSuperAdmin, members[0].RoleName)
	require.Equal(t, accounts.MembershipActive, members[0].Status)
}

func TestConcurrentClaimHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	org := f.defaultOrg(t, owner.ID).Organization

	inv, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: "race@example.com"})
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := f.svc.Orgs.ClaimAccount(ctx, inv.Digest.Token, "pw", "", "", nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Len(t, failures, workers-1)
	for _, err := range failures {
		require.ErrorIs(t, err, accounts.ErrNotFound)
	}
}

func TestUpdateAndRemoveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	org := f.defaultOrg(t, owner.ID).Organization
	other := f.verifiedUser(t, "other@example.com", "pw")
	otherOrg := f.defaultOrg(t, other.ID).Organization

	inv, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: "member@example.com", FirstName: "Mem"})
	require.NoError(t, err)

	designation, last := "Lead", "Ber"
	ms, err := f.svc.Orgs.UpdateMember(ctx, org.ID, inv.Membership.ID, owner.ID, accounts.MemberUpdate{
		Designation: &designation,
		LastName:    &last,
	})
	require.NoError(t, err)
	require.Equal(t, "Lead", ms.Designation)

	members, err := f.svc.Orgs.GetOrgMembers(ctx, org.ID, owner.ID, "BER")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "Mem", members[0].FirstName)
	require.Equal(t, "Lead", members[0].Designation)

	_, err = f.svc.Orgs.GetOrgMembers(ctx, org.ID, other.ID, "")
	require.ErrorIs(t, err, accounts.ErrForbidden)

	err = f.svc.Orgs.RemoveMember(ctx, otherOrg.ID, inv.Membership.ID, other.ID)
	require.ErrorIs(t, err, accounts.ErrInvalidInput)

	require.NoError(t, f.svc.Orgs.RemoveMember(ctx, org.ID, inv.Membership.ID, owner.ID))
	members, err = f.svc.Orgs.GetOrgMembers(ctx, org.ID, owner.ID, "")
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestOrganizationLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	home := f.defaultOrg(t, owner.ID)

	org, err := f.svc.Orgs.CreateOrganization(ctx, owner.ID, accounts.OrgInput{Name: "Acme Corp", EmployeeCount: 12})
	require.NoError(t, err)
	require.Equal(t, "acme-corp", org.URLName)

	twin, err := f.svc.Orgs.CreateOrganization(ctx, owner.ID, accounts.OrgInput{Name: "Acme Corp"})
	require.NoError(t, err)
	require.Regexp(t, `^acme-corp-[0-9a-z]{6}$`, twin.URLName)

	_, err = f.svc.Orgs.CreateOrganization(ctx, owner.ID, accounts.OrgInput{Name: "  "})
	require.ErrorIs(t, err, accounts.ErrInvalidInput)

	data, err := f.svc.Orgs.GetInitData(ctx, owner.ID, "")
	require.NoError(t, err)
	require.Equal(t, home.Organization.ID, data.DefaultOrganization.Organization.ID)
	require.Len(t, data.OtherOrganizations, 2)
	require.False(t, data.OtherOrganizations[0].Membership.IsDefault)

	updated, err := f.svc.Orgs.UpdateOrganization(ctx, org.ID, owner.ID, accounts.OrgInput{Name: "Acme Inc", Website: "https://acme.test"})
	require.NoError(t, err)
	require.Equal(t, "Acme Inc", updated.Name)
	require.Equal(t, "acme-corp", updated.URLName)

	guest := f.verifiedUser(t, "guest@example.com", "pw")
	_, err = f.svc.Orgs.UpdateOrganization(ctx, org.ID, guest.ID, accounts.OrgInput{Name: "Hijack"})
	require.ErrorIs(t, err, accounts.ErrForbidden)

	_, err = f.svc.Orgs.GetInitData(ctx, guest.ID, org.ID)
	require.ErrorIs(t, err, accounts.ErrForbidden)
}

func TestInitDataFallsBackToOldestMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	org := f.defaultOrg(t, owner.ID).Organization

	// A shadow user has no workspace; once claimed, its only membership is
	// not marked default.
	inv, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: "solo@example.com"})
	require.NoError(t, err)
	_, user, err := f.svc.Orgs.ClaimAccount(ctx, inv.Digest.Token, "pw", "", "", nil)
	require.NoError(t, err)

	data, err := f.svc.Orgs.GetInitData(ctx, user.ID, "")
	require.NoError(t, err)
	require.NotNil(t, data.DefaultOrganization)
	require.Equal(t, org.ID, data.DefaultOrganization.Organization.ID)
	require.False(t, data.DefaultOrganization.Membership.IsDefault)
	require.Empty(t, data.OtherOrganizations)
}

func TestCustomRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.verifiedUser(t, "owner@example.com", "pw")
	org := f.defaultOrg(t, owner.ID).Organization

	role, err := f.svc.Orgs.CreateOrgRole(ctx, org.ID, owner.ID, accounts.RoleInput{Name: "Billing", Description: "invoices"})
	require.NoError(t, err)
	_, err = f.svc.Orgs.CreateOrgRole(ctx, org.ID, owner.ID, accounts.RoleInput{Name: "billing"})
	require.ErrorIs(t, err, accounts.ErrConflict)
	_, err = f.svc.Orgs.CreateOrgRole(ctx, org.ID, owner.ID, accounts.RoleInput{Name: " "})
	require.ErrorIs(t, err, accounts.ErrInvalidInput)

	roles, err := f.svc.Orgs.ListOrgRoles(ctx, org.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, roles, 3)
	require.True(t, roles[0].IsSystem())
	require.True(t, roles[1].IsSystem())
	require.Equal(t, "Billing", roles[2].Name)

	renamed, err := f.svc.Orgs.UpdateOrgRole(ctx, org.ID, role.ID, owner.ID, accounts.RoleInput{Name: "Finance"})
	require.NoError(t, err)
	require.Equal(t, "Finance", renamed.Name)

	_, err = f.svc.Orgs.UpdateOrgRole(ctx, org.ID, adminRoleID(t, f), owner.ID, accounts.RoleInput{Name: "Boss"})
	require.ErrorIs(t, err, accounts.ErrForbidden)

	inv, err := f.svc.Orgs.Invite(ctx, org.ID, owner.ID, accounts.InviteInput{Email: "fin@example.com", RoleID: role.ID})
	require.NoError(t, err)
	err = f.svc.Orgs.RemoveOrgRole(ctx, org.ID, role.ID, owner.ID)
	require.ErrorIs(t, err, accounts.ErrConflict)

	require.NoError(t, f.svc.Orgs.RemoveMember(ctx, org.ID, inv.Membership.ID, owner.ID))
	require.NoError(t, f.svc.Orgs.RemoveOrgRole(ctx, org.ID, role.ID, owner.ID))

	roles, err = f.svc.Orgs.ListOrgRoles(ctx, org.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, roles, 2)
}

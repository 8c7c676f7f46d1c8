package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"nrkgo.com/accounts/internal/accounts"
)

func TestWithinTxRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx accounts.Store) error {
		if err := tx.Users().Create(ctx, &accounts.User{ID: "u1", Email: "a@example.com"}); err != nil {
			return err
		}
		// Nested transactions join the outer one.
		if err := tx.WithinTx(ctx, func(ctx context.Context, tx accounts.Store) error {
			return tx.Users().Create(ctx, &accounts.User{ID: "u2", Email: "b@example.com"})
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	for _, id := range []string{"u1", "u2"} {
		if _, err := s.Users().Find(ctx, id); !errors.Is(err, accounts.ErrNotFound) {
			t.Fatalf("%s survived rollback: %v", id, err)
		}
	}
}

func TestWithinTxCommits(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.WithinTx(ctx, func(ctx context.Context, tx accounts.Store) error {
		return tx.Users().Create(ctx, &accounts.User{ID: "u1", Email: "a@example.com"})
	})
	if err != nil {
		t.Fatal(err)
	}
	u, err := s.Users().FindByEmail(ctx, "A@example.com")
	if err != nil || u.ID != "u1" {
		t.Fatalf("unexpected lookup: %v %v", u, err)
	}
}

func TestUniqueConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Users().Create(ctx, &accounts.User{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Users().Create(ctx, &accounts.User{ID: "u2", Email: "A@EXAMPLE.COM"}); !errors.Is(err, accounts.ErrConflict) {
		t.Fatalf("expected conflict on email, got %v", err)
	}
	if err := s.Organizations().Create(ctx, &accounts.Organization{ID: "o1", Name: "Org", URLName: "org"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Organizations().Create(ctx, &accounts.Organization{ID: "o2", Name: "Org", URLName: "org"}); !errors.Is(err, accounts.ErrConflict) {
		t.Fatalf("expected conflict on url name, got %v", err)
	}
	if taken, err := s.Organizations().ExistsByURLName(ctx, "org"); err != nil || !taken {
		t.Fatalf("ExistsByURLName(org) = %v, %v", taken, err)
	}
	ms := &accounts.Membership{ID: "m1", OrgID: "o1", UserID: "u1"}
	if err := s.Memberships().Create(ctx, ms); err != nil {
		t.Fatal(err)
	}
	dup := &accounts.Membership{ID: "m2", OrgID: "o1", UserID: "u1"}
	if err := s.Memberships().Create(ctx, dup); !errors.Is(err, accounts.ErrConflict) {
		t.Fatalf("expected conflict on membership, got %v", err)
	}
	orphan := &accounts.Membership{ID: "m3", OrgID: "o1", UserID: "missing"}
	if err := s.Memberships().Create(ctx, orphan); !errors.Is(err, accounts.ErrNotFound) {
		t.Fatalf("expected not found for missing user, got %v", err)
	}

	org := "o1"
	if err := s.Roles().Create(ctx, &accounts.Role{ID: "r1", Name: "Ops", OrgID: &org}); err != nil {
		t.Fatal(err)
	}
	if err := s.Roles().Create(ctx, &accounts.Role{ID: "r2", Name: "ops", OrgID: &org}); !errors.Is(err, accounts.ErrConflict) {
		t.Fatalf("expected conflict on role name, got %v", err)
	}
	// The same name is free at global scope.
	if err := s.Roles().Create(ctx, &accounts.Role{ID: "r3", Name: "Ops"}); err != nil {
		t.Fatal(err)
	}
}

func TestCountActiveByOrgAndRole(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Organizations().Create(ctx, &accounts.Organization{ID: "o1", Name: "Org", URLName: "org"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Roles().Create(ctx, &accounts.Role{ID: "admin", Name: "Admin", Protected: true}); err != nil {
		t.Fatal(err)
	}
	for i, status := range []accounts.MembershipStatus{accounts.MembershipActive, accounts.MembershipPending, accounts.MembershipActive} {
		uid := fmt.Sprintf("u%d", i)
		if err := s.Users().Create(ctx, &accounts.User{ID: uid, Email: uid + "@example.com"}); err != nil {
			t.Fatal(err)
		}
		ms := &accounts.Membership{ID: fmt.Sprintf("m%d", i), OrgID: "o1", UserID: uid, RoleID: "admin", Status: status}
		if err := s.Memberships().Create(ctx, ms); err != nil {
			t.Fatal(err)
		}
	}
	all, err := s.Memberships().CountByOrgAndRole(ctx, "o1", "admin")
	if err != nil || all != 3 {
		t.Fatalf("CountByOrgAndRole = %d, %v", all, err)
	}
	active, err := s.Memberships().CountActiveByOrgAndRole(ctx, "o1", "admin")
	if err != nil || active != 2 {
		t.Fatalf("CountActiveByOrgAndRole = %d, %v", active, err)
	}
}

func TestSessionQueries(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.Users().Create(ctx, &accounts.User{ID: "u1", Email: "a@example.com"})

	sessions := []*accounts.Session{
		{ID: "s1", UserID: "u1", Cookie: "c1", Status: accounts.SessionActive, ExpiresAt: now.Add(time.Hour)},
		{ID: "s2", UserID: "u1", Cookie: "c2", Status: accounts.SessionActive, ExpiresAt: now.Add(-time.Minute)},
		{ID: "s3", UserID: "u1", Cookie: "c3", Status: accounts.SessionRevoked, ExpiresAt: now.Add(time.Hour)},
	}
	for _, sess := range sessions {
		if err := s.Sessions().Create(ctx, sess); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Sessions().Create(ctx, &accounts.Session{ID: "s4", UserID: "u1", Cookie: "c1"}); !errors.Is(err, accounts.ErrConflict) {
		t.Fatalf("expected cookie conflict, got %v", err)
	}

	active, err := s.Sessions().ListActive(ctx, "u1", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != "s1" {
		t.Fatalf("unexpected active sessions: %+v", active)
	}

	n, err := s.Sessions().RevokeAllByUser(ctx, "u1", "u1", now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked, got %d", n)
	}
	got, _ := s.Sessions().FindByCookie(ctx, "c1")
	if got.Status != accounts.SessionRevoked || got.ModifiedBy != "u1" {
		t.Fatalf("session not revoked: %+v", got)
	}
}

func TestDigestLookups(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, d := range []*accounts.Digest{
		{ID: "d1", Kind: accounts.KindInvite, EntityID: "m1", Token: "t1", Metadata: map[string]string{"email": "x"}},
		{ID: "d2", Kind: accounts.KindInvite, EntityID: "m1", Token: "t2"},
		{ID: "d3", Kind: accounts.KindPasswordReset, EntityID: "m1", Token: "t3"},
	} {
		if err := s.Digests().Create(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	latest, err := s.Digests().FindByEntity(ctx, accounts.KindInvite, "m1")
	if err != nil || latest.ID != "d2" {
		t.Fatalf("unexpected latest digest: %+v %v", latest, err)
	}
	d1, err := s.Digests().FindByToken(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	d1.Metadata["email"] = "mutated"
	again, _ := s.Digests().FindByToken(ctx, "t1")
	if again.Metadata["email"] != "x" {
		t.Fatal("metadata aliased the stored record")
	}
	if err := s.Digests().Delete(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Digests().FindByToken(ctx, "t1"); !errors.Is(err, accounts.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

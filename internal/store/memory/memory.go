// Package memory is an in-process accounts.Store. Transactions are serialised
// behind one mutex and roll back by restoring a snapshot.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"nrkgo.com/accounts/internal/accounts"
)

var _ accounts.Store = (*Store)(nil)

type state struct {
	users       map[string]accounts.User
	sessions    map[string]accounts.Session
	orgs        map[string]accounts.Organization
	memberships map[string]accounts.Membership
	roles       map[string]accounts.Role
	digests     map[string]accounts.Digest
}

func newState() *state {
	return &state{
		users:       map[string]accounts.User{},
		sessions:    map[string]accounts.Session{},
		orgs:        map[string]accounts.Organization{},
		memberships: map[string]accounts.Membership{},
		roles:       map[string]accounts.Role{},
		digests:     map[string]accounts.Digest{},
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	for k, v := range st.orgs {
		c.orgs[k] = v
	}
	for k, v := range st.memberships {
		c.memberships[k] = v
	}
	for k, v := range st.roles {
		c.roles[k] = v
	}
	for k, v := range st.digests {
		v.Metadata = copyMeta(v.Metadata)
		c.digests[k] = v
	}
	return c
}

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
}

// New returns an empty store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, st: newState()}
}

func (s *Store) acquire() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx runs fn with exclusive access. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(context.Context, accounts.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	tx := &Store{mu: s.mu, st: s.st, inTx: true}
	if err := fn(ctx, tx); err != nil {
		*s.st = *snapshot
		return err
	}
	return nil
}

func (s *Store) Users() accounts.UserStore                 { return userRepo{s} }
func (s *Store) Sessions() accounts.SessionStore           { return sessionRepo{s} }
func (s *Store) Organizations() accounts.OrganizationStore { return orgRepo{s} }
func (s *Store) Memberships() accounts.MembershipStore     { return membershipRepo{s} }
func (s *Store) Roles() accounts.RoleStore                 { return roleRepo{s} }
func (s *Store) Digests() accounts.DigestStore             { return digestRepo{s} }

func notFound(what, id string) error {
	return fmt.Errorf("%w: %s %s", accounts.ErrNotFound, what, id)
}

func conflict(what string) error {
	return fmt.Errorf("%w: %s", accounts.ErrConflict, what)
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Users -------------------------------------------------------------------

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, u *accounts.User) error {
	defer r.s.acquire()()
	if _, ok := r.s.st.users[u.ID]; ok {
		return conflict("user id")
	}
	for _, existing := range r.s.st.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return conflict("email already registered")
		}
	}
	r.s.st.users[u.ID] = *u
	return nil
}

func (r userRepo) Update(_ context.Context, u *accounts.User) error {
	defer r.s.acquire()()
	if _, ok := r.s.st.users[u.ID]; !ok {
		return notFound("user", u.ID)
	}
	for id, existing := range r.s.st.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return conflict("email already registered")
		}
	}
	r.s.st.users[u.ID] = *u
	return nil
}

func (r userRepo) Find(_ context.Context, id string) (*accounts.User, error) {
	defer r.s.acquire()()
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

func (r userRepo) FindByEmail(_ context.Context, email string) (*accounts.User, error) {
	defer r.s.acquire()()
	for _, u := range r.s.st.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, notFound("user", email)
}

// Sessions ----------------------------------------------------------------

type sessionRepo struct{ s *Store }

func (r sessionRepo) Create(_ context.Context, sess *accounts.Session) error {
	defer r.s.acquire()()
	if _, ok := r.s.st.users[sess.UserID]; !ok {
		return notFound("user", sess.UserID)
	}
	for _, existing := range r.s.st.sessions {
		if existing.Cookie == sess.Cookie {
			return conflict("session cookie")
		}
	}
	r.s.st.sessions[sess.ID] = *sess
	return nil
}

func (r sessionRepo) Find(_ context.Context, id string) (*accounts.Session, error) {
	defer r.s.acquire()()
	sess, ok := r.s.st.sessions[id]
	if !ok {
		return nil, notFound("session", id)
	}
	return &sess, nil
}

func (r sessionRepo) FindByCookie(_ context.Context, cookie string) (*accounts.Session, error) {
	defer r.s.acquire()()
	for _, sess := range r.s.st.sessions {
		if sess.Cookie == cookie {
			return &sess, nil
		}
	}
	return nil, notFound("session", "by cookie")
}

func (r sessionRepo) ListActive(_ context.Context, userID string, now time.Time) ([]*accounts.Session, error) {
	defer r.s.acquire()()
	var out []*accounts.Session
	for _, sess := range r.s.st.sessions {
		if sess.UserID == userID && sess.ValidAt(now) {
			sess := sess
			out = append(out, &sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r sessionRepo) UpdateStatus(_ context.Context, id string, status accounts.SessionStatus, actor string, at time.Time) error {
	defer r.s.acquire()()
	sess, ok := r.s.st.sessions[id]
	if !ok {
		return notFound("session", id)
	}
	sess.Status = status
	sess.ModifiedBy, sess.ModifiedAt = actor, at
	r.s.st.sessions[id] = sess
	return nil
}

func (r sessionRepo) RevokeAllByUser(_ context.Context, userID, actor string, at time.Time) (int, error) {
	defer r.s.acquire()()
	n := 0
	for id, sess := range r.s.st.sessions {
		if sess.UserID != userID || sess.Status != accounts.SessionActive {
			continue
		}
		sess.Status = accounts.SessionRevoked
		sess.ModifiedBy, sess.ModifiedAt = actor, at
		r.s.st.sessions[id] = sess
		n++
	}
	return n, nil
}

// Organizations -----------------------------------------------------------

type orgRepo struct{ s *Store }

func (r orgRepo) urlNameTaken(id, urlName string) bool {
	for _, o := range r.s.st.orgs {
		if o.ID != id && o.URLName == urlName {
			return true
		}
	}
	return false
}

func (r orgRepo) Create(_ context.Context, org *accounts.Organization) error {
	defer r.s.acquire()()
	if _, ok := r.s.st.orgs[org.ID]; ok {
		return conflict("organization id")
	}
	if r.urlNameTaken(org.ID, org.URLName) {
		return conflict("organization url name")
	}
	r.s.st.orgs[org.ID] = *org
	return nil
}

func (r orgRepo) Update(_ context.Context, org *accounts.Organization) error {
	defer r.s.acquire()()
	if _, ok := r.s.st.orgs[org.ID]; !ok {
		return notFound("organization", org.ID)
	}
	if r.urlNameTaken(org.ID, org.URLName) {
		return conflict("organization url name")
	}
	r.s.st.orgs[org.ID] = *org
	return nil
}

func (r orgRepo) ExistsByURLName(_ context.Context, urlName string) (bool, error) {
	defer r.s.acquire()()
	return r.urlNameTaken("", urlName), nil
}

func (r orgRepo) Find(_ context.Context, id string) (*accounts.Organization, error) {
	defer r.s.acquire()()
	org, ok := r.s.st.orgs[id]
	if !ok {
		return nil, notFound("organization", id)
	}
	return &org, nil
}

// Memberships -------------------------------------------------------------

type membershipRepo struct{ s *Store }

func (r membershipRepo) checkRefs(ms *accounts.Membership) error {
	if _, ok := r.s.st.orgs[ms.OrgID]; !ok {
		return notFound("organization", ms.OrgID)
	}
	if _, ok := r.s.st.users[ms.UserID]; !ok {
		return notFound("user", ms.UserID)
	}
	if ms.RoleID != "" {
		if _, ok := r.s.st.roles[ms.RoleID]; !ok {
			return notFound("role", ms.RoleID)
		}
	}
	return nil
}

func (r membershipRepo) Create(_ context.Context, ms *accounts.Membership) error {
	defer r.s.acquire()()
	if err := r.checkRefs(ms); err != nil {
		return err
	}
	for _, existing := range r.s.st.memberships {
		if existing.OrgID == ms.OrgID && existing.UserID == ms.UserID {
			return conflict("membership already exists")
		}
	}
	r.s.st.memberships[ms.ID] = *ms
	return nil
}

func (r membershipRepo) Update(_ context.Context, ms *accounts.Membership) error {
	defer r.s.acquire()()
	if _, ok := r.s.st.memberships[ms.ID]; !ok {
		return notFound("membership", ms.ID)
	}
	if err := r.checkRefs(ms); err != nil {
		return err
	}
	r.s.st.memberships[ms.ID] = *ms
	return nil
}

func (r membershipRepo) Delete(_ context.Context, id string) error {
	defer r.s.acquire()()
	if _, ok := r.s.st.memberships[id]; !ok {
		return notFound("membership", id)
	}
	delete(r.s.st.memberships, id)
	return nil
}

func (r membershipRepo) Find(_ context.Context, id string) (*accounts.Membership, error) {
	defer r.s.acquire()()
	ms, ok := r.s.st.memberships[id]
	if !ok {
		return nil, notFound("membership", id)
	}
	return &ms, nil
}

func (r membershipRepo) FindByOrgAndUser(_ context.Context, orgID, userID string) (*accounts.Membership, error) {
	defer r.s.acquire()()
	for _, ms := range r.s.st.memberships {
		if ms.OrgID == orgID && ms.UserID == userID {
			return &ms, nil
		}
	}
	return nil, notFound("membership", orgID+"/"+userID)
}

func (r membershipRepo) ExistsByOrgAndUser(_ context.Context, orgID, userID string) (bool, error) {
	defer r.s.acquire()()
	for _, ms := range r.s.st.memberships {
		if ms.OrgID == orgID && ms.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r membershipRepo) ListByUser(_ context.Context, userID string) ([]*accounts.Membership, error) {
	defer r.s.acquire()()
	var out []*accounts.Membership
	for _, ms := range r.s.st.memberships {
		if ms.UserID == userID {
			ms := ms
			out = append(out, &ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r membershipRepo) CountByOrgAndRole(_ context.Context, orgID, roleID string) (int, error) {
	defer r.s.acquire()()
	n := 0
	for _, ms := range r.s.st.memberships {
		if ms.OrgID == orgID && ms.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (r membershipRepo) CountActiveByOrgAndRole(_ context.Context, orgID, roleID string) (int, error) {
	defer r.s.acquire()()
	n := 0
	for _, ms := range r.s.st.memberships {
		if ms.OrgID == orgID && ms.RoleID == roleID && ms.Status == accounts.MembershipActive {
			n++
		}
	}
	return n, nil
}

func (r membershipRepo) ListMembers(_ context.Context, orgID, search string) ([]accounts.MemberView, error) {
	defer r.s.acquire()()
	needle := strings.ToLower(search)
	var out []accounts.MemberView
	for _, ms := range r.s.st.memberships {
		if ms.OrgID != orgID {
			continue
		}
		u := r.s.st.users[ms.UserID]
		if needle != "" &&
			!strings.Contains(strings.ToLower(u.FirstName), needle) &&
			!strings.Contains(strings.ToLower(u.LastName), needle) &&
			!strings.Contains(strings.ToLower(u.Email), needle) {
			continue
		}
		view := accounts.MemberView{
			MembershipID: ms.ID,
			Email:        u.Email,
			Designation:  ms.Designation,
			FirstName:    u.FirstName,
			LastName:     u.LastName,
			Status:       ms.Status,
			CreatedAt:    ms.CreatedAt,
			RoleID:       ms.RoleID,
		}
		if role, ok := r.s.st.roles[ms.RoleID]; ok {
			view.RoleName = role.Name
		}
		if ms.Status == accounts.MembershipPending {
			if dg := latestDigest(r.s.st, accounts.KindInvite, ms.ID); dg != nil {
				view.InviteToken = dg.Token
			}
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MembershipID < out[j].MembershipID })
	return out, nil
}

// Roles -------------------------------------------------------------------

type roleRepo struct{ s *Store }

func sameScope(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r roleRepo) checkName(role *accounts.Role) error {
	for id, existing := range r.s.st.roles {
		if id != role.ID && sameScope(existing.OrgID, role.OrgID) && strings.EqualFold(existing.Name, role.Name) {
			return conflict("role name already exists")
		}
	}
	return nil
}

func (r roleRepo) Create(_ context.Context, role *accounts.Role) error {
	defer r.s.acquire()()
	if role.OrgID != nil {
		if _, ok := r.s.st.orgs[*role.OrgID]; !ok {
			return notFound("organization", *role.OrgID)
		}
	}
	if err := r.checkName(role); err != nil {
		return err
	}
	r.s.st.roles[role.ID] = cloneRole(*role)
	return nil
}

func (r roleRepo) Update(_ context.Context, role *accounts.Role) error {
	defer r.s.acquire()()
	if _, ok := r.s.st.roles[role.ID]; !ok {
		return notFound("role", role.ID)
	}
	if err := r.checkName(role); err != nil {
		return err
	}
	r.s.st.roles[role.ID] = cloneRole(*role)
	return nil
}

func (r roleRepo) Delete(_ context.Context, id string) error {
	defer r.s.acquire()()
	if _, ok := r.s.st.roles[id]; !ok {
		return notFound("role", id)
	}
	for _, ms := range r.s.st.memberships {
		if ms.RoleID == id {
			return conflict("role is referenced by a membership")
		}
	}
	delete(r.s.st.roles, id)
	return nil
}

func (r roleRepo) Find(_ context.Context, id string) (*accounts.Role, error) {
	defer r.s.acquire()()
	role, ok := r.s.st.roles[id]
	if !ok {
		return nil, notFound("role", id)
	}
	role = cloneRole(role)
	return &role, nil
}

func (r roleRepo) FindGlobalByName(_ context.Context, name string) (*accounts.Role, error) {
	defer r.s.acquire()()
	for _, role := range r.s.st.roles {
		if role.OrgID == nil && strings.EqualFold(role.Name, name) {
			role = cloneRole(role)
			return &role, nil
		}
	}
	return nil, notFound("role", name)
}

func (r roleRepo) ExistsByNameInOrg(_ context.Context, orgID, name string) (bool, error) {
	defer r.s.acquire()()
	for _, role := range r.s.st.roles {
		if role.OrgID != nil && *role.OrgID == orgID && strings.EqualFold(role.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r roleRepo) ListForOrg(_ context.Context, orgID string) ([]*accounts.Role, error) {
	defer r.s.acquire()()
	var global, custom []*accounts.Role
	for _, role := range r.s.st.roles {
		role = cloneRole(role)
		switch {
		case role.OrgID == nil:
			global = append(global, &role)
		case *role.OrgID == orgID:
			custom = append(custom, &role)
		}
	}
	byName := func(list []*accounts.Role) {
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}
	byName(global)
	byName(custom)
	return append(global, custom...), nil
}

func cloneRole(r accounts.Role) accounts.Role {
	if r.OrgID != nil {
		org := *r.OrgID
		r.OrgID = &org
	}
	return r
}

// Digests -----------------------------------------------------------------

type digestRepo struct{ s *Store }

func (r digestRepo) Create(_ context.Context, d *accounts.Digest) error {
	defer r.s.acquire()()
	for _, existing := range r.s.st.digests {
		if existing.Token == d.Token {
			return conflict("digest token")
		}
	}
	c := *d
	c.Metadata = copyMeta(d.Metadata)
	r.s.st.digests[d.ID] = c
	return nil
}

func (r digestRepo) Delete(_ context.Context, id string) error {
	defer r.s.acquire()()
	if _, ok := r.s.st.digests[id]; !ok {
		return notFound("digest", id)
	}
	delete(r.s.st.digests, id)
	return nil
}

func (r digestRepo) FindByToken(_ context.Context, token string) (*accounts.Digest, error) {
	defer r.s.acquire()()
	for _, d := range r.s.st.digests {
		if d.Token == token {
			d.Metadata = copyMeta(d.Metadata)
			return &d, nil
		}
	}
	return nil, notFound("digest", "by token")
}

func (r digestRepo) FindByEntity(_ context.Context, kind accounts.DigestKind, entityID string) (*accounts.Digest, error) {
	defer r.s.acquire()()
	if d := latestDigest(r.s.st, kind, entityID); d != nil {
		return d, nil
	}
	return nil, notFound("digest", string(kind)+"/"+entityID)
}

func latestDigest(st *state, kind accounts.DigestKind, entityID string) *accounts.Digest {
	var best *accounts.Digest
	for _, d := range st.digests {
		if d.Kind != kind || d.EntityID != entityID {
			continue
		}
		if best == nil || d.ID > best.ID {
			d := d
			d.Metadata = copyMeta(d.Metadata)
			best = &d
		}
	}
	return best
}

package pg

import (
	"context"
	"database/sql"

	"nrkgo.com/accounts/internal/accounts"
)

const orgColumns = `id, name, url_name, status, website, employee_count, description,
	created_by, created_at, modified_by, modified_at`

type orgRepo struct{ s *Store }

func (r orgRepo) Create(ctx context.Context, o *accounts.Organization) error {
	_, err := r.s.q.ExecContext(ctx, `
		insert into organizations (`+orgColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, o.ID, o.Name, o.URLName, o.Status, o.Website, o.EmployeeCount, o.Description,
		o.CreatedBy, o.CreatedAt, o.ModifiedBy, o.ModifiedAt)
	return mapErr(err, "organization")
}

func (r orgRepo) Update(ctx context.Context, o *accounts.Organization) error {
	res, err := r.s.q.ExecContext(ctx, `
		update organizations
		set name=$2, url_name=$3, status=$4, website=$5, employee_count=$6, description=$7,
			modified_by=$8, modified_at=$9
		where id=$1
	`, o.ID, o.Name, o.URLName, o.Status, o.Website, o.EmployeeCount, o.Description, o.ModifiedBy, o.ModifiedAt)
	return expectOne(res, err, "organization")
}

func (r orgRepo) Find(ctx context.Context, id string) (*accounts.Organization, error) {
	var o accounts.Organization
	err := r.s.q.QueryRowContext(ctx, `select `+orgColumns+` from organizations where id=$1`, id).
		Scan(&o.ID, &o.Name, &o.URLName, &o.Status, &o.Website, &o.EmployeeCount, &o.Description,
			&o.CreatedBy, &o.CreatedAt, &o.ModifiedBy, &o.ModifiedAt)
	if err != nil {
		return nil, mapErr(err, "organization")
	}
	return &o, nil
}

func (r orgRepo) ExistsByURLName(ctx context.Context, urlName string) (bool, error) {
	var exists bool
	err := r.s.q.QueryRowContext(ctx, `
		select exists(select 1 from organizations where url_name=$1)
	`, urlName).Scan(&exists)
	return exists, err
}

const membershipColumns = `id, org_id, user_id, role_id, status, is_default, designation,
	created_by, created_at, modified_by, modified_at`

type membershipRepo struct{ s *Store }

func scanMembership(row rowScanner) (*accounts.Membership, error) {
	var (
		m      accounts.Membership
		roleID sql.NullString
	)
	err := row.Scan(&m.ID, &m.OrgID, &m.UserID, &roleID, &m.Status, &m.IsDefault, &m.Designation,
		&m.CreatedBy, &m.CreatedAt, &m.ModifiedBy, &m.ModifiedAt)
	if err != nil {
		return nil, err
	}
	m.RoleID = roleID.String
	return &m, nil
}

func (r membershipRepo) Create(ctx context.Context, m *accounts.Membership) error {
	_, err := r.s.q.ExecContext(ctx, `
		insert into org_users (`+membershipColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, m.ID, m.OrgID, m.UserID, nullIfEmpty(m.RoleID), m.Status, m.IsDefault, m.Designation,
		m.CreatedBy, m.CreatedAt, m.ModifiedBy, m.ModifiedAt)
	return mapErr(err, "membership")
}

func (r membershipRepo) Update(ctx context.Context, m *accounts.Membership) error {
	res, err := r.s.q.ExecContext(ctx, `
		update org_users
		set role_id=$2, status=$3, is_default=$4, designation=$5, modified_by=$6, modified_at=$7
		where id=$1
	`, m.ID, nullIfEmpty(m.RoleID), m.Status, m.IsDefault, m.Designation, m.ModifiedBy, m.ModifiedAt)
	return expectOne(res, err, "membership")
}

func (r membershipRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.q.ExecContext(ctx, `delete from org_users where id=$1`, id)
	return expectOne(res, err, "membership")
}

func (r membershipRepo) Find(ctx context.Context, id string) (*accounts.Membership, error) {
	m, err := scanMembership(r.s.q.QueryRowContext(ctx, `select `+membershipColumns+` from org_users where id=$1`, id))
	return m, mapErr(err, "membership")
}

func (r membershipRepo) FindByOrgAndUser(ctx context.Context, orgID, userID string) (*accounts.Membership, error) {
	m, err := scanMembership(r.s.q.QueryRowContext(ctx, `
		select `+membershipColumns+` from org_users where org_id=$1 and user_id=$2
	`, orgID, userID))
	return m, mapErr(err, "membership")
}

func (r membershipRepo) ExistsByOrgAndUser(ctx context.Context, orgID, userID string) (bool, error) {
	var exists bool
	err := r.s.q.QueryRowContext(ctx, `
		select exists(select 1 from org_users where org_id=$1 and user_id=$2)
	`, orgID, userID).Scan(&exists)
	return exists, err
}

func (r membershipRepo) ListByUser(ctx context.Context, userID string) ([]*accounts.Membership, error) {
	rows, err := r.s.q.QueryContext(ctx, `
		select `+membershipColumns+` from org_users where user_id=$1 order by id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*accounts.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r membershipRepo) CountByOrgAndRole(ctx context.Context, orgID, roleID string) (int, error) {
	var n int
	err := r.s.q.QueryRowContext(ctx, `
		select count(*) from org_users where org_id=$1 and role_id=$2
	`, orgID, roleID).Scan(&n)
	return n, err
}

// CountActiveByOrgAndRole locks the active holder rows before counting. Under
// read committed a concurrent transaction that deleted or reassigned one of
// them is waited for, and the row drops out of the count once it commits.
func (r membershipRepo) CountActiveByOrgAndRole(ctx context.Context, orgID, roleID string) (int, error) {
	var n int
	err := r.s.q.QueryRowContext(ctx, `
		select count(*) from (
			select id from org_users
			where org_id=$1 and role_id=$2 and status=$3
			order by id
			for update
		) holders
	`, orgID, roleID, accounts.MembershipActive).Scan(&n)
	return n, err
}

// ListMembers joins users, roles and the newest invite digest of pending members.
func (r membershipRepo) ListMembers(ctx context.Context, orgID, search string) ([]accounts.MemberView, error) {
	rows, err := r.s.q.QueryContext(ctx, `
		select m.id, u.email, coalesce(ro.name, ''), m.designation, u.first_name, u.last_name,
			m.status, m.created_at, coalesce(m.role_id, ''), coalesce(d.token, '')
		from org_users m
		join users u on u.id = m.user_id
		left join roles ro on ro.id = m.role_id
		left join lateral (
			select token from digests
			where kind = $3 and entity_id = m.id and m.status = $4
			order by id desc
			limit 1
		) d on true
		where m.org_id = $1
		  and ($2 = '' or strpos(lower(u.first_name), lower($2)) > 0
			or strpos(lower(u.last_name), lower($2)) > 0
			or strpos(lower(u.email), lower($2)) > 0)
		order by m.id
	`, orgID, search, accounts.KindInvite, accounts.MembershipPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []accounts.MemberView
	for rows.Next() {
		var v accounts.MemberView
		if err := rows.Scan(&v.MembershipID, &v.Email, &v.RoleName, &v.Designation, &v.FirstName,
			&v.LastName, &v.Status, &v.CreatedAt, &v.RoleID, &v.InviteToken); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

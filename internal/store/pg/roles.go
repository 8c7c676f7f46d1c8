package pg

import (
	"context"
	"database/sql"
	"fmt"

	"nrkgo.com/accounts/internal/accounts"
)

const roleColumns = `id, name, description, org_id, protected, created_by, created_at, modified_by, modified_at`

type roleRepo struct{ s *Store }

func scanRole(row rowScanner) (*accounts.Role, error) {
	var (
		r     accounts.Role
		orgID sql.NullString
	)
	err := row.Scan(&r.ID, &r.Name, &r.Description, &orgID, &r.Protected,
		&r.CreatedBy, &r.CreatedAt, &r.ModifiedBy, &r.ModifiedAt)
	if err != nil {
		return nil, err
	}
	if orgID.Valid {
		r.OrgID = &orgID.String
	}
	return &r, nil
}

func orgRef(id *string) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *id, Valid: true}
}

func (r roleRepo) Create(ctx context.Context, role *accounts.Role) error {
	_, err := r.s.q.ExecContext(ctx, `
		insert into roles (`+roleColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, role.ID, role.Name, role.Description, orgRef(role.OrgID), role.Protected,
		role.CreatedBy, role.CreatedAt, role.ModifiedBy, role.ModifiedAt)
	return mapErr(err, "role")
}

func (r roleRepo) Update(ctx context.Context, role *accounts.Role) error {
	res, err := r.s.q.ExecContext(ctx, `
		update roles set name=$2, description=$3, modified_by=$4, modified_at=$5 where id=$1
	`, role.ID, role.Name, role.Description, role.ModifiedBy, role.ModifiedAt)
	return expectOne(res, err, "role")
}

func (r roleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.q.ExecContext(ctx, `delete from roles where id=$1`, id)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return fmt.Errorf("%w: role is referenced by a membership", accounts.ErrConflict)
	}
	return expectOne(res, err, "role")
}

func (r roleRepo) Find(ctx context.Context, id string) (*accounts.Role, error) {
	role, err := scanRole(r.s.q.QueryRowContext(ctx, `select `+roleColumns+` from roles where id=$1`, id))
	return role, mapErr(err, "role")
}

func (r roleRepo) FindGlobalByName(ctx context.Context, name string) (*accounts.Role, error) {
	role, err := scanRole(r.s.q.QueryRowContext(ctx, `
		select `+roleColumns+` from roles where org_id is null and lower(name)=lower($1)
	`, name))
	return role, mapErr(err, "role")
}

func (r roleRepo) ExistsByNameInOrg(ctx context.Context, orgID, name string) (bool, error) {
	var exists bool
	err := r.s.q.QueryRowContext(ctx, `
		select exists(select 1 from roles where org_id=$1 and lower(name)=lower($2))
	`, orgID, name).Scan(&exists)
	return exists, err
}

func (r roleRepo) ListForOrg(ctx context.Context, orgID string) ([]*accounts.Role, error) {
	rows, err := r.s.q.QueryContext(ctx, `
		select `+roleColumns+`
		from roles
		where org_id is null or org_id=$1
		order by org_id nulls first, name
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*accounts.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

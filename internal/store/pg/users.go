package pg

import (
	"context"

	"nrkgo.com/accounts/internal/accounts"
)

const userColumns = `id, email, password_hash, first_name, last_name, mobile_number, country,
	time_zone, source, status, mfa_enabled, created_by, created_at, modified_by, modified_at`

type userRepo struct{ s *Store }

func scanUser(row rowScanner) (*accounts.User, error) {
	var u accounts.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.MobileNumber,
		&u.Country, &u.TimeZone, &u.Source, &u.Status, &u.MFAEnabled,
		&u.CreatedBy, &u.CreatedAt, &u.ModifiedBy, &u.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r userRepo) Create(ctx context.Context, u *accounts.User) error {
	_, err := r.s.q.ExecContext(ctx, `
		insert into users (`+userColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.MobileNumber, u.Country,
		u.TimeZone, u.Source, u.Status, u.MFAEnabled, u.CreatedBy, u.CreatedAt, u.ModifiedBy, u.ModifiedAt)
	return mapErr(err, "user")
}

func (r userRepo) Update(ctx context.Context, u *accounts.User) error {
	res, err := r.s.q.ExecContext(ctx, `
		update users
		set email=$2, password_hash=$3, first_name=$4, last_name=$5, mobile_number=$6, country=$7,
			time_zone=$8, source=$9, status=$10, mfa_enabled=$11, modified_by=$12, modified_at=$13
		where id=$1
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.MobileNumber, u.Country,
		u.TimeZone, u.Source, u.Status, u.MFAEnabled, u.ModifiedBy, u.ModifiedAt)
	return expectOne(res, err, "user")
}

func (r userRepo) Find(ctx context.Context, id string) (*accounts.User, error) {
	u, err := scanUser(r.s.q.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id))
	return u, mapErr(err, "user")
}

func (r userRepo) FindByEmail(ctx context.Context, email string) (*accounts.User, error) {
	u, err := scanUser(r.s.q.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email)=lower($1)`, email))
	return u, mapErr(err, "user")
}

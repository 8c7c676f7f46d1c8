package pg

import (
	"context"
	"time"

	"nrkgo.com/accounts/internal/accounts"
)

const sessionColumns = `id, user_id, cookie, status, expires_at, browser, device_os, device_name,
	machine_ip, created_by, created_at, modified_by, modified_at`

type sessionRepo struct{ s *Store }

func scanSession(row rowScanner) (*accounts.Session, error) {
	var s accounts.Session
	err := row.Scan(&s.ID, &s.UserID, &s.Cookie, &s.Status, &s.ExpiresAt, &s.Browser, &s.DeviceOS,
		&s.DeviceName, &s.MachineIP, &s.CreatedBy, &s.CreatedAt, &s.ModifiedBy, &s.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r sessionRepo) Create(ctx context.Context, s *accounts.Session) error {
	_, err := r.s.q.ExecContext(ctx, `
		insert into user_sessions (`+sessionColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, s.ID, s.UserID, s.Cookie, s.Status, s.ExpiresAt, s.Browser, s.DeviceOS, s.DeviceName,
		s.MachineIP, s.CreatedBy, s.CreatedAt, s.ModifiedBy, s.ModifiedAt)
	return mapErr(err, "session")
}

func (r sessionRepo) Find(ctx context.Context, id string) (*accounts.Session, error) {
	s, err := scanSession(r.s.q.QueryRowContext(ctx, `select `+sessionColumns+` from user_sessions where id=$1`, id))
	return s, mapErr(err, "session")
}

func (r sessionRepo) FindByCookie(ctx context.Context, cookie string) (*accounts.Session, error) {
	s, err := scanSession(r.s.q.QueryRowContext(ctx, `select `+sessionColumns+` from user_sessions where cookie=$1`, cookie))
	return s, mapErr(err, "session")
}

func (r sessionRepo) ListActive(ctx context.Context, userID string, now time.Time) ([]*accounts.Session, error) {
	rows, err := r.s.q.QueryContext(ctx, `
		select `+sessionColumns+`
		from user_sessions
		where user_id=$1 and status=$2 and expires_at > $3
		order by created_at desc, id desc
	`, userID, accounts.SessionActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*accounts.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r sessionRepo) UpdateStatus(ctx context.Context, id string, status accounts.SessionStatus, actor string, at time.Time) error {
	res, err := r.s.q.ExecContext(ctx, `
		update user_sessions set status=$2, modified_by=$3, modified_at=$4 where id=$1
	`, id, status, actor, at)
	return expectOne(res, err, "session")
}

func (r sessionRepo) RevokeAllByUser(ctx context.Context, userID, actor string, at time.Time) (int, error) {
	res, err := r.s.q.ExecContext(ctx, `
		update user_sessions set status=$3, modified_by=$4, modified_at=$5
		where user_id=$1 and status=$2
	`, userID, accounts.SessionActive, accounts.SessionRevoked, actor, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"nrkgo.com/accounts/internal/accounts"
)

const digestColumns = `id, kind, entity_id, token, expires_at, metadata, created_by, created_at, modified_by, modified_at`

type digestRepo struct{ s *Store }

func scanDigest(row rowScanner) (*accounts.Digest, error) {
	var (
		d      accounts.Digest
		rawMet []byte
	)
	err := row.Scan(&d.ID, &d.Kind, &d.EntityID, &d.Token, &d.ExpiresAt, &rawMet,
		&d.CreatedBy, &d.CreatedAt, &d.ModifiedBy, &d.ModifiedAt)
	if err != nil {
		return nil, err
	}
	if len(rawMet) > 0 {
		if err := json.Unmarshal(rawMet, &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &d, nil
}

func (r digestRepo) Create(ctx context.Context, d *accounts.Digest) error {
	metaJSON := []byte("{}")
	if len(d.Metadata) > 0 {
		bytes, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = bytes
	}
	_, err := r.s.q.ExecContext(ctx, `
		insert into digests (`+digestColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, d.ID, d.Kind, d.EntityID, d.Token, d.ExpiresAt, metaJSON,
		d.CreatedBy, d.CreatedAt, d.ModifiedBy, d.ModifiedAt)
	return mapErr(err, "digest")
}

func (r digestRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.q.ExecContext(ctx, `delete from digests where id=$1`, id)
	return expectOne(res, err, "digest")
}

// FindByToken locks the row when called inside a transaction so two redeemers
// of one token serialise.
func (r digestRepo) FindByToken(ctx context.Context, token string) (*accounts.Digest, error) {
	query := `select ` + digestColumns + ` from digests where token=$1`
	if r.s.inTx {
		query += ` for update`
	}
	d, err := scanDigest(r.s.q.QueryRowContext(ctx, query, token))
	return d, mapErr(err, "digest")
}

func (r digestRepo) FindByEntity(ctx context.Context, kind accounts.DigestKind, entityID string) (*accounts.Digest, error) {
	d, err := scanDigest(r.s.q.QueryRowContext(ctx, `
		select `+digestColumns+`
		from digests
		where kind=$1 and entity_id=$2
		order by created_at desc, id desc
		limit 1
	`, kind, entityID))
	return d, mapErr(err, "digest")
}

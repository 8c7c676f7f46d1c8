package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nrkgo.com/accounts/internal/ids"
	"nrkgo.com/accounts/internal/obs"
)

// DigestKind tags what a single-use token authorises.
type DigestKind string

const (
	KindInvite            DigestKind = "INVITE"
	KindEmailVerification DigestKind = "EMAIL_VERIFICATION"
	KindPasswordReset     DigestKind = "PASSWORD_RESET"
)

// TTL is the lifetime of a freshly issued token of kind k.
func (k DigestKind) TTL() time.Duration {
	switch k {
	case KindEmailVerification:
		return 24 * time.Hour
	case KindPasswordReset:
		return time.Hour
	case KindInvite:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Subject is the record a digest points at. The concrete type fixes both the
// digest kind and how the stored entity id is interpreted.
type Subject interface {
	Kind() DigestKind
	EntityID() string
}

// VerificationSubject is the user whose email a verification token confirms.
type VerificationSubject struct{ UserID string }

// PasswordResetSubject is the user whose password a reset token replaces.
type PasswordResetSubject struct{ UserID string }

// InviteSubject is the pending membership an invite token activates.
type InviteSubject struct{ MembershipID string }

func (VerificationSubject) Kind() DigestKind    { return KindEmailVerification }
func (s VerificationSubject) EntityID() string  { return s.UserID }
func (PasswordResetSubject) Kind() DigestKind   { return KindPasswordReset }
func (s PasswordResetSubject) EntityID() string { return s.UserID }
func (InviteSubject) Kind() DigestKind          { return KindInvite }
func (s InviteSubject) EntityID() string        { return s.MembershipID }

// Digest is a typed, expiring, single-use token record.
type Digest struct {
	ID        string
	Kind      DigestKind
	EntityID  string
	Token     string
	ExpiresAt time.Time
	Metadata  map[string]string
	Audit
}

// Subject decodes the entity reference according to the digest kind.
func (d *Digest) Subject() (Subject, error) {
	if d.EntityID == "" {
		return nil, fmt.Errorf("%w: digest %s has no entity", ErrInvalidToken, d.ID)
	}
	switch d.Kind {
	case KindEmailVerification:
		return VerificationSubject{UserID: d.EntityID}, nil
	case KindPasswordReset:
		return PasswordResetSubject{UserID: d.EntityID}, nil
	case KindInvite:
		return InviteSubject{MembershipID: d.EntityID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown digest kind %q", ErrInvalidToken, d.Kind)
	}
}

// ExpiredAt reports whether the token can no longer be redeemed at now.
func (d *Digest) ExpiredAt(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// Digests issues and redeems single-use tokens. Every method takes the store
// to run against so callers can compose them inside one transaction.
type Digests struct {
	svc *Service
}

// Issue mints a token for subject with the kind's TTL.
func (d *Digests) Issue(ctx context.Context, tx Store, subject Subject, actor string, metadata map[string]string) (*Digest, error) {
	kind := subject.Kind()
	token, err := ids.Token()
	if err != nil {
		return nil, err
	}
	now := d.svc.now().UTC()
	dg := &Digest{
		ID:        ids.New(),
		Kind:      kind,
		EntityID:  subject.EntityID(),
		Token:     token,
		ExpiresAt: now.Add(kind.TTL()),
		Metadata:  metadata,
	}
	dg.stampCreated(actor, now)
	if err := tx.Digests().Create(ctx, dg); err != nil {
		return nil, fmt.Errorf("issue %s digest: %w", kind, err)
	}
	obs.DigestIssued(string(kind))
	return dg, nil
}

// Redeem looks a token up and checks its kind and expiry. It does not delete
// the record; call Consume once the domain action succeeded.
func (d *Digests) Redeem(ctx context.Context, tx Store, token string, expected DigestKind) (*Digest, error) {
	if token == "" {
		obs.DigestRedeemed(string(expected), "not_found")
		return nil, fmt.Errorf("%w: token", ErrNotFound)
	}
	dg, err := tx.Digests().FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.DigestRedeemed(string(expected), "not_found")
		}
		return nil, err
	}
	if dg.Kind != expected {
		obs.DigestRedeemed(string(expected), "wrong_kind")
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, expected)
	}
	if dg.ExpiredAt(d.svc.now()) {
		obs.DigestRedeemed(string(expected), "expired")
		return nil, fmt.Errorf("%w: %s token", ErrExpired, expected)
	}
	obs.DigestRedeemed(string(expected), "ok")
	return dg, nil
}

// Consume deletes a redeemed token.
func (d *Digests) Consume(ctx context.Context, tx Store, dg *Digest) error {
	return tx.Digests().Delete(ctx, dg.ID)
}

// FindActiveByEntity returns the live token for subject, or nil when there is
// none. An expired token found on the way is deleted.
func (d *Digests) FindActiveByEntity(ctx context.Context, tx Store, subject Subject) (*Digest, error) {
	dg, err := tx.Digests().FindByEntity(ctx, subject.Kind(), subject.EntityID())
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if dg.ExpiredAt(d.svc.now()) {
		if err := tx.Digests().Delete(ctx, dg.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return dg, nil
}

package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"nrkgo.com/accounts/internal/audit"
	"nrkgo.com/accounts/internal/ids"
)

const (
	defaultLastName = "User"
	defaultTimeZone = "UTC"
)

// Identity registers users, checks credentials and runs the password lifecycle.
type Identity struct {
	svc *Service
}

// AccountStatus is what the sign-in screen needs to know about an email.
type AccountStatus struct {
	Exists   bool
	Verified bool
	Shadow   bool
}

// NormalizeEmail lowercases and trims an address and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return email, nil
}

// Register creates an unverified user with a personal workspace in which the
// user is the active, default Super Admin, then sends a verification email.
// Any existing account with the email, shadow or not, is a conflict.
func (m *Identity) Register(ctx context.Context, reg Registration) (*User, error) {
	svc := m.svc
	email, err := NormalizeEmail(reg.Email)
	if err != nil {
		return nil, err
	}
	if reg.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := svc.hasher.Hash(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	first := strings.TrimSpace(reg.FirstName)
	if first == "" {
		first = email[:strings.IndexByte(email, '@')]
	}
	last := strings.TrimSpace(reg.LastName)
	if last == "" {
		last = defaultLastName
	}
	tz := strings.TrimSpace(reg.TimeZone)
	if tz == "" {
		tz = defaultTimeZone
	}

	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    first,
		LastName:     last,
		MobileNumber: strings.TrimSpace(reg.MobileNumber),
		Country:      strings.TrimSpace(reg.Country),
		TimeZone:     tz,
		Source:       strings.TrimSpace(reg.Source),
		Status:       UserCreated,
	}

	var verification *Digest
	err = svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.Users().FindByEmail(ctx, email); err == nil {
			return fmt.Errorf("%w: email already registered", ErrConflict)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		now := svc.now().UTC()
		user.stampCreated(user.ID, now)
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		if _, err := svc.Orgs.provisionOrg(ctx, tx, user.ID, OrgInput{Name: first + "'s Workspace"}, true); err != nil {
			return err
		}
		verification, err = svc.Digests.Issue(ctx, tx, VerificationSubject{UserID: user.ID}, user.ID, map[string]string{"email": email})
		return err
	})
	if err != nil {
		return nil, err
	}

	_ = audit.LogEvent(ctx, "accounts.user.registered", map[string]any{"user_id": user.ID, "email": email})
	svc.sendEmail(ctx, "verification", email, func() (Message, error) {
		return svc.templates.Verification(user, verification.Token)
	})
	return user, nil
}

// Login checks credentials and opens a session. Unknown email and wrong
// password both yield ErrInvalidCredentials. An unverified user gets
// ErrNotVerified; the caller is expected to resend the verification email.
func (m *Identity) Login(ctx context.Context, email, password string, dev *Device) (*Session, *User, error) {
	svc := m.svc
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}
	user, err := svc.store.Users().FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if !svc.hasher.Verify(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}
	if user.Status != UserActive {
		return nil, user, ErrNotVerified
	}
	sess, err := svc.Sessions.create(ctx, svc.store, user, dev, "login")
	if err != nil {
		return nil, nil, err
	}
	return sess, user, nil
}

// VerifyEmail redeems a verification token and activates its user.
func (m *Identity) VerifyEmail(ctx context.Context, token string) (*User, error) {
	svc := m.svc
	var user *User
	err := svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		dg, err := svc.Digests.Redeem(ctx, tx, token, KindEmailVerification)
		if err != nil {
			return err
		}
		subject, err := dg.Subject()
		if err != nil {
			return err
		}
		user, err = tx.Users().Find(ctx, subject.(VerificationSubject).UserID)
		if err != nil {
			return err
		}
		user.Status = UserActive
		user.stampModified(user.ID, svc.now().UTC())
		if err := tx.Users().Update(ctx, user); err != nil {
			return err
		}
		return svc.Digests.Consume(ctx, tx, dg)
	})
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "accounts.user.verified", map[string]any{"user_id": user.ID})
	return user, nil
}

// ResendVerification sends the outstanding verification token again, issuing
// a new one when none is live.
func (m *Identity) ResendVerification(ctx context.Context, email string) error {
	svc := m.svc
	email = strings.ToLower(strings.TrimSpace(email))
	var (
		user *User
		dg   *Digest
	)
	err := svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		user, err = tx.Users().FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if user.Status == UserActive {
			return fmt.Errorf("%w: email already verified", ErrAlreadyProcessed)
		}
		if user.IsShadow() {
			return fmt.Errorf("%w: account has not been claimed", ErrForbidden)
		}
		subject := VerificationSubject{UserID: user.ID}
		dg, err = svc.Digests.FindActiveByEntity(ctx, tx, subject)
		if err != nil || dg != nil {
			return err
		}
		dg, err = svc.Digests.Issue(ctx, tx, subject, user.ID, map[string]string{"email": email})
		return err
	})
	if err != nil {
		return err
	}
	svc.sendEmail(ctx, "verification", email, func() (Message, error) {
		return svc.templates.Verification(user, dg.Token)
	})
	return nil
}

// CheckStatus reports whether an email is registered, verified or a shadow account.
func (m *Identity) CheckStatus(ctx context.Context, email string) (AccountStatus, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := m.svc.store.Users().FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return AccountStatus{}, nil
	}
	if err != nil {
		return AccountStatus{}, err
	}
	return AccountStatus{
		Exists:   true,
		Verified: user.Status == UserActive,
		Shadow:   user.IsShadow(),
	}, nil
}

// InitiatePasswordReset issues a one hour reset token and emails it.
// An unknown email yields ErrNotFound; hiding that is left to the transport.
func (m *Identity) InitiatePasswordReset(ctx context.Context, email string) error {
	svc := m.svc
	email = strings.ToLower(strings.TrimSpace(email))
	var (
		user *User
		dg   *Digest
	)
	err := svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		user, err = tx.Users().FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		dg, err = svc.Digests.Issue(ctx, tx, PasswordResetSubject{UserID: user.ID}, user.ID, map[string]string{"email": email})
		return err
	})
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "accounts.password.reset_requested", map[string]any{"user_id": user.ID})
	svc.sendEmail(ctx, "password_reset", email, func() (Message, error) {
		return svc.templates.PasswordReset(user, dg.Token, KindPasswordReset.TTL())
	})
	return nil
}

// ResetPassword redeems a reset token and replaces the password. Unless
// disabled with WithRevokeSessionsOnReset, every session of the user is revoked.
func (m *Identity) ResetPassword(ctx context.Context, token, newPassword string) error {
	svc := m.svc
	if newPassword == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := svc.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	var (
		userID  string
		revoked int
	)
	err = svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		dg, err := svc.Digests.Redeem(ctx, tx, token, KindPasswordReset)
		if err != nil {
			return err
		}
		subject, err := dg.Subject()
		if err != nil {
			return err
		}
		user, err := tx.Users().Find(ctx, subject.(PasswordResetSubject).UserID)
		if err != nil {
			return err
		}
		userID = user.ID
		user.PasswordHash = hash
		user.stampModified(user.ID, svc.now().UTC())
		if err := tx.Users().Update(ctx, user); err != nil {
			return err
		}
		if err := svc.Digests.Consume(ctx, tx, dg); err != nil {
			return err
		}
		if svc.revokeOnReset {
			revoked, err = svc.Sessions.RevokeAll(ctx, tx, user.ID, user.ID)
		}
		return err
	})
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "accounts.password.reset", map[string]any{
		"user_id":          userID,
		"sessions_revoked": revoked,
	})
	return nil
}

// Get loads a user by id.
func (m *Identity) Get(ctx context.Context, userID string) (*User, error) {
	return m.svc.store.Users().Find(ctx, userID)
}

// UpdateProfile applies the non-nil fields of p. An empty update returns the
// user unchanged.
func (m *Identity) UpdateProfile(ctx context.Context, userID string, p Profile) (*User, error) {
	svc := m.svc
	var user *User
	err := svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		user, err = tx.Users().Find(ctx, userID)
		if err != nil {
			return err
		}
		changed := setIf(&user.FirstName, p.FirstName)
		changed = setIf(&user.LastName, p.LastName) || changed
		changed = setIf(&user.MobileNumber, p.MobileNumber) || changed
		changed = setIf(&user.Country, p.Country) || changed
		changed = setIf(&user.TimeZone, p.TimeZone) || changed
		if p.MFAEnabled != nil && *p.MFAEnabled != user.MFAEnabled {
			user.MFAEnabled = *p.MFAEnabled
			changed = true
		}
		if !changed {
			return nil
		}
		user.stampModified(userID, svc.now().UTC())
		return tx.Users().Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func setIf(dst *string, src *string) bool {
	if src == nil {
		return false
	}
	v := strings.TrimSpace(*src)
	if v == *dst {
		return false
	}
	*dst = v
	return true
}

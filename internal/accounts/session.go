package accounts

import (
	"context"
	"errors"
	"fmt"

	"nrkgo.com/accounts/internal/audit"
	"nrkgo.com/accounts/internal/ids"
	"nrkgo.com/accounts/internal/obs"
)

// Sessions issues, validates, lists and revokes session tokens. Sessions are
// not sliding: validation never extends ExpiresAt.
type Sessions struct {
	svc *Service
}

// Create mints a session for user. dev may be nil.
func (m *Sessions) Create(ctx context.Context, user *User, dev *Device) (*Session, error) {
	return m.create(ctx, m.svc.store, user, dev, "login")
}

func (m *Sessions) create(ctx context.Context, tx Store, user *User, dev *Device, source string) (*Session, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	token, err := ids.Token()
	if err != nil {
		return nil, err
	}
	now := m.svc.now().UTC()
	s := &Session{
		ID:        ids.New(),
		UserID:    user.ID,
		Cookie:    token,
		Status:    SessionActive,
		ExpiresAt: now.Add(m.svc.sessionTTL),
	}
	if dev != nil {
		s.Browser = dev.Browser
		s.DeviceOS = dev.OS
		s.DeviceName = dev.Name
		s.MachineIP = dev.IP
	}
	s.stampCreated(user.ID, now)
	if err := tx.Sessions().Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	obs.SessionIssued(source)
	_ = audit.LogEvent(ctx, "accounts.session.created", map[string]any{
		"user_id":    user.ID,
		"session_id": s.ID,
		"source":     source,
		"ip":         s.MachineIP,
	})
	return s, nil
}

// Validate reports whether token names an active, unexpired session.
func (m *Sessions) Validate(ctx context.Context, token string) (bool, error) {
	s, err := m.lookup(ctx, token)
	if err != nil || s == nil {
		return false, err
	}
	return true, nil
}

// ResolveUser returns the owner of a valid session, or nil when the token
// does not authenticate. Only storage failures are returned as errors.
func (m *Sessions) ResolveUser(ctx context.Context, token string) (*User, error) {
	s, err := m.lookup(ctx, token)
	if err != nil || s == nil {
		return nil, err
	}
	u, err := m.svc.store.Users().Find(ctx, s.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// Current returns the valid session behind token, or nil.
func (m *Sessions) Current(ctx context.Context, token string) (*Session, error) {
	return m.lookup(ctx, token)
}

func (m *Sessions) lookup(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}
	s, err := m.svc.store.Sessions().FindByCookie(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.ValidAt(m.svc.now()) {
		return nil, nil
	}
	return s, nil
}

// ListActive returns the user's active, unexpired sessions.
func (m *Sessions) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	return m.svc.store.Sessions().ListActive(ctx, userID, m.svc.now().UTC())
}

// Revoke marks a session revoked. Only its owner may revoke it.
func (m *Sessions) Revoke(ctx context.Context, sessionID, requesterID string) error {
	return m.svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		s, err := tx.Sessions().Find(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.UserID != requesterID {
			return fmt.Errorf("%w: session belongs to another user", ErrForbidden)
		}
		if err := tx.Sessions().UpdateStatus(ctx, s.ID, SessionRevoked, requesterID, m.svc.now().UTC()); err != nil {
			return err
		}
		_ = audit.LogEvent(ctx, "accounts.session.revoked", map[string]any{
			"user_id":    requesterID,
			"session_id": s.ID,
		})
		return nil
	})
}

// Logout revokes the session presented by token. Unknown tokens are ignored.
func (m *Sessions) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	s, err := m.svc.store.Sessions().FindByCookie(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.Revoke(ctx, s.ID, s.UserID)
}

// RevokeAll revokes every active session of userID.
func (m *Sessions) RevokeAll(ctx context.Context, tx Store, userID, actor string) (int, error) {
	n, err := tx.Sessions().RevokeAllByUser(ctx, userID, actor, m.svc.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		_ = audit.LogEvent(ctx, "accounts.session.revoked", map[string]any{
			"user_id": userID,
			"count":   n,
		})
	}
	return n, nil
}

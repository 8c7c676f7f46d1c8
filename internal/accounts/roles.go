package accounts

import (
	"context"
	"fmt"
	"strings"

	"nrkgo.com/accounts/internal/audit"
	"nrkgo.com/accounts/internal/ids"
)

// ListOrgRoles returns the global roles followed by the custom roles of orgID.
func (m *Orgs) ListOrgRoles(ctx context.Context, orgID, requesterID string) ([]*Role, error) {
	store := m.svc.store
	if err := m.requireMember(ctx, store, orgID, requesterID); err != nil {
		return nil, err
	}
	return store.Roles().ListForOrg(ctx, orgID)
}

// CreateOrgRole adds a custom role to orgID. Names are unique within the organization.
func (m *Orgs) CreateOrgRole(ctx context.Context, orgID, requesterID string, in RoleInput) (*Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	var role *Role
	err := m.svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if err := m.requireMember(ctx, tx, orgID, requesterID); err != nil {
			return err
		}
		exists, err := tx.Roles().ExistsByNameInOrg(ctx, orgID, name)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: role %q already exists in organization", ErrConflict, name)
		}
		owner := orgID
		role = &Role{
			ID:          ids.New(),
			Name:        name,
			Description: strings.TrimSpace(in.Description),
			OrgID:       &owner,
		}
		role.stampCreated(requesterID, m.svc.now().UTC())
		return tx.Roles().Create(ctx, role)
	})
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "accounts.role.created", map[string]any{"org_id": orgID, "role_id": role.ID})
	return role, nil
}

// UpdateOrgRole renames or redescribes a custom role. System roles are immutable.
func (m *Orgs) UpdateOrgRole(ctx context.Context, orgID, roleID, requesterID string, in RoleInput) (*Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	var role *Role
	err := m.svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if err := m.requireMember(ctx, tx, orgID, requesterID); err != nil {
			return err
		}
		var err error
		if role, err = m.customRole(ctx, tx, orgID, roleID); err != nil {
			return err
		}
		if !strings.EqualFold(name, role.Name) {
			exists, err := tx.Roles().ExistsByNameInOrg(ctx, orgID, name)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: role %q already exists in organization", ErrConflict, name)
			}
		}
		role.Name = name
		role.Description = strings.TrimSpace(in.Description)
		role.stampModified(requesterID, m.svc.now().UTC())
		return tx.Roles().Update(ctx, role)
	})
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "accounts.role.updated", map[string]any{"org_id": orgID, "role_id": roleID})
	return role, nil
}

// RemoveOrgRole deletes a custom role that no membership references.
func (m *Orgs) RemoveOrgRole(ctx context.Context, orgID, roleID, requesterID string) error {
	err := m.svc.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if err := m.requireMember(ctx, tx, orgID, requesterID); err != nil {
			return err
		}
		role, err := m.customRole(ctx, tx, orgID, roleID)
		if err != nil {
			return err
		}
		n, err := tx.Memberships().CountByOrgAndRole(ctx, orgID, role.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: role is assigned to %d members", ErrConflict, n)
		}
		return tx.Roles().Delete(ctx, role.ID)
	})
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "accounts.role.removed", map[string]any{"org_id": orgID, "role_id": roleID})
	return nil
}

func (m *Orgs) customRole(ctx context.Context, tx Store, orgID, roleID string) (*Role, error) {
	role, err := tx.Roles().Find(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystem() {
		return nil, fmt.Errorf("%w: system roles cannot be changed", ErrForbidden)
	}
	if *role.OrgID != orgID {
		return nil, fmt.Errorf("%w: role does not belong to this organization", ErrInvalidInput)
	}
	return role, nil
}

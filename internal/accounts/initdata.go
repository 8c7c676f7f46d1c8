package accounts

import (
	"context"
	"fmt"
	"sort"
)

// GetInitData resolves the caller's current organization. requestedOrgID wins
// when the user belongs to it; otherwise the default membership is used, and
// failing that the oldest membership (lowest id).
func (m *Orgs) GetInitData(ctx context.Context, userID, requestedOrgID string) (*InitData, error) {
	store := m.svc.store
	user, err := store.Users().Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	memberships, err := store.Memberships().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(memberships, func(i, j int) bool { return memberships[i].ID < memberships[j].ID })

	data := &InitData{User: user}
	if len(memberships) == 0 {
		if requestedOrgID != "" {
			return nil, fmt.Errorf("%w: not a member of this organization", ErrForbidden)
		}
		return data, nil
	}

	current := -1
	switch {
	case requestedOrgID != "":
		for i, ms := range memberships {
			if ms.OrgID == requestedOrgID {
				current = i
				break
			}
		}
		if current < 0 {
			return nil, fmt.Errorf("%w: not a member of this organization", ErrForbidden)
		}
	default:
		current = 0
		for i, ms := range memberships {
			if ms.IsDefault {
				current = i
				break
			}
		}
	}

	roleNames := map[string]string{}
	for i, ms := range memberships {
		summary, err := m.summarize(ctx, store, ms, roleNames)
		if err != nil {
			return nil, err
		}
		if i == current {
			data.DefaultOrganization = summary
			continue
		}
		data.OtherOrganizations = append(data.OtherOrganizations, *summary)
	}
	return data, nil
}

func (m *Orgs) summarize(ctx context.Context, store Store, ms *Membership, roleNames map[string]string) (*OrgSummary, error) {
	org, err := store.Organizations().Find(ctx, ms.OrgID)
	if err != nil {
		return nil, err
	}
	summary := &OrgSummary{Organization: *org, Membership: *ms}
	if ms.RoleID == "" {
		return summary, nil
	}
	name, ok := roleNames[ms.RoleID]
	if !ok {
		role, err := store.Roles().Find(ctx, ms.RoleID)
		if err != nil {
			return nil, err
		}
		name = role.Name
		roleNames[ms.RoleID] = name
	}
	summary.RoleName = name
	return summary, nil
}

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nrkgo.com/accounts/internal/accounts"
)

type orgRequest struct {
	Name          string `json:"name"`
	Website       string `json:"website"`
	EmployeeCount int    `json:"employeeCount"`
	Description   string `json:"description"`
}

func (req orgRequest) input() accounts.OrgInput {
	return accounts.OrgInput{
		Name:          req.Name,
		Website:       req.Website,
		EmployeeCount: req.EmployeeCount,
		Description:   req.Description,
	}
}

type inviteRequest struct {
	Email       string `json:"email"`
	RoleID      string `json:"roleId"`
	Designation string `json:"designation"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

type memberUpdateRequest struct {
	RoleID      *string `json:"roleId"`
	Designation *string `json:"designation"`
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
}

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) createOrg(w http.ResponseWriter, r *http.Request) {
	var req orgRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.svc.Orgs.CreateOrganization(r.Context(), currentUser(r).ID, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrg(org))
}

func (a *API) updateOrg(w http.ResponseWriter, r *http.Request) {
	var req orgRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.svc.Orgs.UpdateOrganization(r.Context(), chi.URLParam(r, "orgID"), currentUser(r).ID, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrg(org))
}

// claimOrg activates the caller's pending membership without a token.
func (a *API) claimOrg(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Orgs.ClaimOrgAccess(r.Context(), chi.URLParam(r, "orgID"), currentUser(r).ID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "organization access granted"})
}

func (a *API) inviteMember(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	inv, err := a.svc.Orgs.Invite(r.Context(), chi.URLParam(r, "orgID"), currentUser(r).ID, accounts.InviteInput{
		Email:       req.Email,
		RoleID:      req.RoleID,
		Designation: req.Designation,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"membership": toMembership(inv.Membership),
		"user":       toUser(inv.User),
		"expiresAt":  inv.Digest.ExpiresAt,
	})
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := a.svc.Orgs.GetOrgMembers(r.Context(), chi.URLParam(r, "orgID"), currentUser(r).ID, r.URL.Query().Get("search"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if members == nil {
		members = []accounts.MemberView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": members})
}

func (a *API) updateMember(w http.ResponseWriter, r *http.Request) {
	var req memberUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ms, err := a.svc.Orgs.UpdateMember(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "memberID"), currentUser(r).ID, accounts.MemberUpdate{
		RoleID:      req.RoleID,
		Designation: req.Designation,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMembership(ms))
}

func (a *API) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Orgs.RemoveMember(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "memberID"), currentUser(r).ID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// inviteLink returns a shareable acceptance link for a pending member.
func (a *API) inviteLink(w http.ResponseWriter, r *http.Request) {
	token, err := a.svc.Orgs.GetOrGenerateInviteToken(r.Context(), currentUser(r).ID, chi.URLParam(r, "memberID"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"link":  a.baseURL + "/invitations/accept?token=" + token,
	})
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.svc.Orgs.ListOrgRoles(r.Context(), chi.URLParam(r, "orgID"), currentUser(r).ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	items := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		items = append(items, toRole(role))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.svc.Orgs.CreateOrgRole(r.Context(), chi.URLParam(r, "orgID"), currentUser(r).ID, accounts.RoleInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRole(role))
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.svc.Orgs.UpdateOrgRole(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "roleID"), currentUser(r).ID, accounts.RoleInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRole(role))
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Orgs.RemoveOrgRole(r.Context(), chi.URLParam(r, "orgID"), chi.URLParam(r, "roleID"), currentUser(r).ID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type claimAccountRequest struct {
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (a *API) invitationDetails(w http.ResponseWriter, r *http.Request) {
	details, err := a.svc.Orgs.InvitationDetails(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvitation(details))
}

// acceptInvitation activates the signed-in user's pending membership.
func (a *API) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	ms, err := a.svc.Orgs.AcceptInvite(r.Context(), chi.URLParam(r, "token"), currentUser(r).ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMembership(ms))
}

// claimAccount sets a password on the shadow account behind the invite and
// signs it in.
func (a *API) claimAccount(w http.ResponseWriter, r *http.Request) {
	var req claimAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sess, user, err := a.svc.Orgs.ClaimAccount(r.Context(), chi.URLParam(r, "token"), req.Password, req.FirstName, req.LastName, DeviceFromRequest(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.setSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, toAuth(sess, user))
}

// invitationSession signs in an existing invitee straight from the link.
func (a *API) invitationSession(w http.ResponseWriter, r *http.Request) {
	sess, user, err := a.svc.Orgs.SessionFromInvite(r.Context(), chi.URLParam(r, "token"), DeviceFromRequest(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.setSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, toAuth(sess, user))
}

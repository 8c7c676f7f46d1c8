package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nrkgo.com/accounts/internal/accounts"
)

type profileRequest struct {
	FirstName    *string `json:"firstName"`
	LastName     *string `json:"lastName"`
	MobileNumber *string `json:"mobileNumber"`
	Country      *string `json:"country"`
	TimeZone     *string `json:"timeZone"`
	MFAEnabled   *bool   `json:"mfaEnabled"`
}

func (a *API) getMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUser(currentUser(r)))
}

func (a *API) updateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.Identity.UpdateProfile(r.Context(), currentUser(r).ID, accounts.Profile{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		MobileNumber: req.MobileNumber,
		Country:      req.Country,
		TimeZone:     req.TimeZone,
		MFAEnabled:   req.MFAEnabled,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(user))
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.svc.Sessions.ListActive(r.Context(), currentUser(r).ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	token := tokenFromContext(r.Context())
	items := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toSession(s, token))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) revokeSession(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Sessions.Revoke(r.Context(), chi.URLParam(r, "sessionID"), currentUser(r).ID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

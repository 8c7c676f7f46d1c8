package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"nrkgo.com/accounts/internal/accounts"
	"nrkgo.com/accounts/internal/obs"
)

const forgotPasswordMessage = "If an account exists with this email, a password reset link has been sent."

type signupRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	MobileNumber string `json:"mobileNumber"`
	Country      string `json:"country"`
	TimeZone     string `json:"timeZone"`
	Source       string `json:"source"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// signup registers a user and signs them in straight away. Login stays
// blocked until the email is verified.
func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.Identity.Register(r.Context(), accounts.Registration{
		Email:        req.Email,
		Password:     req.Password,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		MobileNumber: req.MobileNumber,
		Country:      req.Country,
		TimeZone:     req.TimeZone,
		Source:       req.Source,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	sess, err := a.svc.Sessions.Create(r.Context(), user, DeviceFromRequest(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.setSessionCookie(w, sess)
	writeJSON(w, http.StatusCreated, toAuth(sess, user))
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sess, user, err := a.svc.Identity.Login(r.Context(), req.Email, req.Password, DeviceFromRequest(r))
	if errors.Is(err, accounts.ErrNotVerified) {
		if rerr := a.svc.Identity.ResendVerification(r.Context(), req.Email); rerr != nil {
			obs.Logger().Warn("resend verification failed", zap.String("email", req.Email), zap.Error(rerr))
		}
		writeError(w, r, http.StatusForbidden, "email not verified, a new verification link has been sent")
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.setSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, toAuth(sess, user))
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Sessions.Logout(r.Context(), a.sessionToken(r)); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

func (a *API) checkStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}
	st, err := a.svc.Identity.CheckStatus(r.Context(), email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exists":   st.Exists,
		"verified": st.Verified,
		"shadow":   st.Shadow,
	})
}

// sessionStatus reports whether the presented session is valid. It never fails
// for a missing or stale token.
func (a *API) sessionStatus(w http.ResponseWriter, r *http.Request) {
	_, ok := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"valid": ok})
}

func (a *API) initData(w http.ResponseWriter, r *http.Request) {
	data, err := a.svc.Orgs.GetInitData(r.Context(), currentUser(r).ID, r.URL.Query().Get("org_id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInit(data))
}

// verifyEmail is the target of the emailed link: it activates the account,
// signs the user in and redirects to the frontend.
func (a *API) verifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	user, err := a.svc.Identity.VerifyEmail(r.Context(), token)
	if err != nil {
		obs.Logger().Info("email verification failed", zap.Error(err))
		http.Redirect(w, r, a.baseURL+"/login?error=verification_failed", http.StatusSeeOther)
		return
	}
	sess, err := a.svc.Sessions.Create(r.Context(), user, DeviceFromRequest(r))
	if err != nil {
		obs.Logger().Error("session after verification failed", zap.String("user_id", user.ID), zap.Error(err))
		http.Redirect(w, r, a.baseURL+"/login", http.StatusSeeOther)
		return
	}
	a.setSessionCookie(w, sess)
	http.Redirect(w, r, a.baseURL+"/", http.StatusSeeOther)
}

func (a *API) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.Identity.ResendVerification(r.Context(), req.Email); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"message": "verification email sent"})
}

// forgotPassword answers the same way whether or not the email is registered.
func (a *API) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.svc.Identity.InitiatePasswordReset(r.Context(), req.Email)
	if err != nil && !errors.Is(err, accounts.ErrNotFound) && !errors.Is(err, accounts.ErrInvalidInput) {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": forgotPasswordMessage})
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.Identity.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "password has been reset, sign in with the new password"})
}

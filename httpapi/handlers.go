package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sportsprop/authcore"
	"github.com/sportsprop/authcore/credstore"
	"github.com/sportsprop/authcore/middleware"
	"github.com/sportsprop/authcore/password"
	"github.com/sportsprop/authcore/session"
)

type loginRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

type loginResponse struct {
	Identity       string    `json:"identity"`
	Roles          []string  `json:"roles"`
	SessionToken   string    `json:"session_token"`
	AccessToken    string    `json:"access_token"`
	TokenType      string    `json:"token_type"`
	ExpiresAt      time.Time `json:"expires_at"`
	UsedBackupCode bool      `json:"used_backup_code,omitempty"`
}

type passwordRequest struct {
	Password string `json:"password"`
	Identity string `json:"identity,omitempty"`
}

type assessmentResponse struct {
	Assessment password.Assessment `json:"assessment"`
	Feedback   []string            `json:"feedback"`
}

type sessionView struct {
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Current        bool              `json:"current,omitempty"`
}

type confirmTOTPRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

type createUserRequest struct {
	Identity  string   `json:"identity"`
	Password  string   `json:"password"`
	Roles     []string `json:"roles"`
	Name      string   `json:"name,omitempty"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Address   string   `json:"address,omitempty"`
	Birthdate string   `json:"birthdate,omitempty"`
}

type rolesRequest struct {
	Roles []string `json:"roles"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, code, msg)
}

// rejected renders guard rejections in the envelope. Every 401 carries the
// same body whatever the token fault was.
func (h *Handler) rejected(w http.ResponseWriter, _ *http.Request, status int, _ error) {
	reason := authcore.ErrSessionInvalid
	if status == http.StatusForbidden {
		reason = authcore.ErrPermissionDenied
	}
	_, code, msg := mapError(reason)
	writeError(w, status, code, msg)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	res, err := h.engine.Login(middleware.RequestContext(r), req.Identity, req.Password, req.TOTPCode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, loginResponse{
		Identity:       res.Identity,
		Roles:          res.Roles,
		SessionToken:   res.SessionToken,
		AccessToken:    res.AccessToken,
		TokenType:      "Bearer",
		ExpiresAt:      res.ExpiresAt,
		UsedBackupCode: res.UsedBackupCode,
	})
}

// assessPassword is public so sign-up forms can show live feedback. With an
// identity the per-user check runs as well.
func (h *Handler) assessPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	var a password.Assessment
	if id := strings.TrimSpace(req.Identity); id != "" {
		a = h.engine.AssessPasswordForProfile(req.Password, password.Profile{Username: id})
	} else {
		a = h.engine.AssessPassword(req.Password)
	}
	writeSuccess(w, http.StatusOK, assessmentResponse{Assessment: a, Feedback: h.engine.PasswordFeedback(a)})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	if err := h.engine.Logout(r.Context(), sess.Token); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	n, err := h.engine.LogoutAll(r.Context(), claims.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]int{"revoked": n})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	current := r.Header.Get(middleware.SessionHeader)
	writeSuccess(w, http.StatusOK, sessionViews(h.engine.ActiveSessions(claims.UserID), current))
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	var req passwordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	err := h.engine.ResetPassword(r.Context(), claims.UserID, req.Password)
	if errors.Is(err, authcore.ErrPasswordPolicy) {
		a, aerr := h.engine.AssessPasswordFor(r.Context(), claims.UserID, req.Password)
		var details []string
		if aerr == nil {
			details = h.engine.PasswordFeedback(a)
		}
		status, code, msg := mapError(err)
		writeError(w, status, code, msg, details...)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "password updated")
}

func (h *Handler) enrollTOTP(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	enrollment, err := h.engine.EnrollTOTP(r.Context(), claims.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{
		"secret":           enrollment.Secret,
		"provisioning_uri": enrollment.ProvisioningURI,
	})
}

func (h *Handler) confirmTOTP(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	var req confirmTOTPRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	codes, err := h.engine.ConfirmTOTP(r.Context(), claims.UserID, req.Secret, req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (h *Handler) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	codes, err := h.engine.RegenerateBackupCodes(r.Context(), claims.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (h *Handler) disableTOTP(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := h.engine.DisableTOTP(r.Context(), claims.UserID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "two-factor authentication disabled")
}

/*
====================================
ADMIN
====================================
*/

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	h.engine.UnlockAccount(middleware.RequestContext(r), chi.URLParam(r, "identity"))
	writeMessage(w, http.StatusOK, "unlocked")
}

func (h *Handler) userSessions(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, sessionViews(h.engine.ActiveSessions(chi.URLParam(r, "identity")), ""))
}

func (h *Handler) adminLogoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.LogoutAll(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]int{"revoked": n})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	profile := password.Profile{
		Username:  req.Identity,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
		Birthdate: req.Birthdate,
	}
	if a := h.engine.AssessPasswordForProfile(req.Password, profile); !a.Overall {
		writeError(w, http.StatusBadRequest, "WEAK_PASSWORD", "password does not meet the strength policy",
			h.engine.PasswordFeedback(a)...)
		return
	}

	hash, err := h.engine.HashPassword(req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := h.users.CreateUser(r.Context(), credstore.User{
		Identity:     req.Identity,
		PasswordHash: hash,
		Roles:        req.Roles,
		Profile:      profile,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]string{"id": id, "identity": strings.TrimSpace(req.Identity)})
}

func (h *Handler) setRoles(w http.ResponseWriter, r *http.Request) {
	var req rolesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	identity := chi.URLParam(r, "identity")
	if err := h.users.SetRoles(r.Context(), identity, req.Roles); err != nil {
		h.fail(w, r, err)
		return
	}
	// Tokens already issued keep their roles until they expire; sessions
	// are revoked so the next login picks up the change.
	if _, err := h.engine.LogoutAll(r.Context(), identity); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "roles updated")
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if err := h.users.DeleteUser(r.Context(), identity); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.engine.LogoutAll(r.Context(), identity); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionViews(sessions []session.Session, current string) []sessionView {
	out := make([]sessionView, len(sessions))
	for i, s := range sessions {
		out[i] = sessionView{
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			Metadata:       s.Metadata,
			Current:        current != "" && s.Token == current,
		}
	}
	return out
}

package httpapi

import (
	"net/http"
	"strings"
	"time"

	"inventra.io/internal/apperr"
	"inventra.io/internal/auth"
)

const (
	refreshCookieName = "refreshToken"
	refreshCookiePath = "/v1/auth"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type sessionResponse struct {
	AccessToken string     `json:"accessToken"`
	User        *auth.User `json:"user"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type statusRequest struct {
	Active *bool `json:"active"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, errInvalidBody)
		return
	}
	identifier := strings.TrimSpace(req.Identifier)
	switch {
	case identifier == "":
		writeError(w, r, apperr.Validation("Identifier is required"))
		return
	case req.Password == "":
		writeError(w, r, apperr.Validation("Password is required"))
		return
	}

	session, err := a.auth.Login(r.Context(), identifier, req.Password, auth.ClientFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.setRefreshCookie(w, session.RefreshToken)
	writeJSON(w, http.StatusOK, sessionResponse{AccessToken: session.AccessToken, User: session.User})
}

// handleRefresh reads the refresh token from the cookie only.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		writeError(w, r, tokenMissing())
		return
	}
	session, err := a.auth.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if apperr.IsKind(err, apperr.KindUnauthorized) {
			a.clearRefreshCookie(w)
		}
		writeError(w, r, err)
		return
	}
	a.setRefreshCookie(w, session.RefreshToken)
	writeJSON(w, http.StatusOK, sessionResponse{AccessToken: session.AccessToken, User: session.User})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		token = cookie.Value
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	a.auth.Logout(r.Context(), userID, token, auth.ClientFromContext(r.Context()))
	a.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, tokenMissing())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": principal.User.Sanitized()})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, errInvalidBody)
		return
	}
	actorID, _ := auth.UserIDFromContext(r.Context())
	user, err := a.auth.Register(r.Context(), auth.NewUser{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	}, actorID, auth.ClientFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/users/"+user.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, errInvalidBody)
		return
	}
	if req.Active == nil {
		writeError(w, r, apperr.Validation("Field 'active' is required"))
		return
	}
	actorID, _ := auth.UserIDFromContext(r.Context())
	user, err := a.auth.SetUserActive(r.Context(), actorID, r.PathValue("id"), *req.Active, auth.ClientFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(a.auth.Tokens().RefreshTTL() / time.Second),
		HttpOnly: true,
		Secure:   a.production,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.production,
		SameSite: http.SameSiteStrictMode,
	})
}


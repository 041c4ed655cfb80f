package handler

import (
	"encoding/json"
	"net/http"

	"storefront-auth/internal/middleware"
	"storefront-auth/internal/model"
	"storefront-auth/internal/service"
	"storefront-auth/pkg/apierror"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	pair, err := h.service.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookies(w, pair)
	writeSuccess(w, http.StatusOK, pair.User)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	pair, err := h.service.Signup(r.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookies(w, pair)
	writeSuccess(w, http.StatusCreated, pair.User)
}

// Logout clears both session cookies unconditionally; the store entry is
// deleted only when the presented refresh token verifies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	for _, cookie := range h.service.ClearedCookies() {
		http.SetCookie(w, cookie)
	}

	if err := h.service.Logout(r.Context(), refreshTokenFromCookie(r)); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true})
}

// RefreshToken exchanges the refresh cookie for a fresh access cookie.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	accessToken, err := h.service.Refresh(r.Context(), refreshTokenFromCookie(r))
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, h.service.AccessCookie(accessToken))
	writeSuccess(w, http.StatusOK, map[string]any{"refreshed": true})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	writeSuccess(w, http.StatusOK, identity)
}

func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.ActiveSessions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.SessionsResponse{ActiveSessions: count})
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, pair model.TokenPair) {
	http.SetCookie(w, h.service.AccessCookie(pair.AccessToken))
	http.SetCookie(w, h.service.RefreshCookie(pair.RefreshToken))
}

func refreshTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(service.RefreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

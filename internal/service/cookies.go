package service

import (
	"net/http"

	"storefront-auth/internal/token"
)

const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
)

// AccessCookie wraps an access token for cookie transport. HttpOnly keeps it
// away from page scripts, SameSite=Strict blocks cross-site sends, Secure is
// on in production.
func (s *AuthService) AccessCookie(accessToken string) *http.Cookie {
	return s.sessionCookie(AccessCookieName, accessToken, int(s.codec.TTL(token.Access).Seconds()))
}

// RefreshCookie wraps a refresh token with a max-age matching the store TTL.
func (s *AuthService) RefreshCookie(refreshToken string) *http.Cookie {
	return s.sessionCookie(RefreshCookieName, refreshToken, int(s.codec.TTL(token.Refresh).Seconds()))
}

// ClearedCookies expires both session cookies; logout sets these
// unconditionally.
func (s *AuthService) ClearedCookies() []*http.Cookie {
	return []*http.Cookie{
		s.sessionCookie(AccessCookieName, "", -1),
		s.sessionCookie(RefreshCookieName, "", -1),
	}
}

func (s *AuthService) sessionCookie(name string, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}

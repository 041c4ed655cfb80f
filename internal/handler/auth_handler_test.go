package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"storefront-auth/internal/config"
	"storefront-auth/internal/handler"
	"storefront-auth/internal/middleware"
	"storefront-auth/internal/model"
	"storefront-auth/internal/repository"
	"storefront-auth/internal/router"
	"storefront-auth/internal/service"
	"storefront-auth/internal/token"
)

type memoryIdentityStore struct {
	byID    map[string]model.User
	byEmail map[string]model.User
}

func (m *memoryIdentityStore) FindByID(_ context.Context, id string) (model.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (m *memoryIdentityStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	u, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (m *memoryIdentityStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, ok := m.byEmail[strings.ToLower(email)]
	return ok, nil
}

func (m *memoryIdentityStore) Create(_ context.Context, u model.User) error {
	m.byID[u.ID] = u
	m.byEmail[strings.ToLower(u.Email)] = u
	return nil
}

type testEnv struct {
	server *httptest.Server
	client *http.Client
	codec  *token.Codec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	codec, err := token.NewCodec("access-secret", 15*time.Minute, "refresh-secret", 168*time.Hour)
	require.NoError(t, err)

	users := &memoryIdentityStore{byID: map[string]model.User{}, byEmail: map[string]model.User{}}
	for _, seed := range []struct {
		id, email, role string
	}{
		{"admin-1", "admin@example.com", model.RoleAdmin},
		{"shopper-1", "shopper@example.com", model.RoleStandard},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
		require.NoError(t, err)
		require.NoError(t, users.Create(context.Background(), model.User{
			ID:           seed.id,
			Email:        seed.email,
			Name:         "Seed User",
			PasswordHash: string(hash),
			Role:         seed.role,
		}))
	}

	authService := service.NewAuthService(codec, users, repository.NewRefreshTokenRepository(redisClient), false)
	authMiddleware := middleware.NewAuthMiddleware(authService)
	authHandler := handler.NewAuthHandler(authService)

	cfg := &config.Config{
		RequestTimeout:   5 * time.Second,
		CORSOrigins:      []string{"http://localhost:5173"},
		RateLimitRPM:     1000,
		AuthRateLimitRPM: 1000,
	}

	server := httptest.NewServer(router.New(cfg, authMiddleware, authHandler))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		server: server,
		client: &http.Client{Jar: jar},
		codec:  codec,
	}
}

func (env *testEnv) postJSON(t *testing.T, path string, payload map[string]string) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := env.client.Post(env.server.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (env *testEnv) login(t *testing.T, email string) *http.Response {
	t.Helper()
	return env.postJSON(t, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": "password123",
	})
}

func decodeErrorCode(t *testing.T, resp *http.Response) string {
	t.Helper()

	var parsed model.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.NotNil(t, parsed.Error)
	return parsed.Error.Code
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginSetsSessionCookiePair(t *testing.T) {
	env := newTestEnv(t)

	resp := env.login(t, "shopper@example.com")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	access := cookieByName(resp.Cookies(), service.AccessCookieName)
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.Equal(t, int((15 * time.Minute).Seconds()), access.MaxAge)

	refresh := cookieByName(resp.Cookies(), service.RefreshCookieName)
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, int((168 * time.Hour).Seconds()), refresh.MaxAge)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	env := newTestEnv(t)

	unknown := env.postJSON(t, "/api/v1/auth/login", map[string]string{
		"email": "nobody@example.com", "password": "password123",
	})
	wrongPassword := env.postJSON(t, "/api/v1/auth/login", map[string]string{
		"email": "shopper@example.com", "password": "wrong",
	})

	require.Equal(t, http.StatusUnauthorized, unknown.StatusCode)
	require.Equal(t, http.StatusUnauthorized, wrongPassword.StatusCode)

	var a, b model.APIResponse
	require.NoError(t, json.NewDecoder(unknown.Body).Decode(&a))
	require.NoError(t, json.NewDecoder(wrongPassword.Body).Decode(&b))
	assert.Equal(t, a.Error, b.Error)
}

func TestLoginMissingFields(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/auth/login", map[string]string{"email": "shopper@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSignupThenProfile(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/auth/signup", map[string]string{
		"name": "New Shopper", "email": "new@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	profileResp, err := env.client.Get(env.server.URL + "/api/v1/auth/profile")
	require.NoError(t, err)
	t.Cleanup(func() { _ = profileResp.Body.Close() })
	require.Equal(t, http.StatusOK, profileResp.StatusCode)

	var parsed struct {
		Data model.AuthUser `json:"data"`
	}
	require.NoError(t, json.NewDecoder(profileResp.Body).Decode(&parsed))
	assert.Equal(t, "new@example.com", parsed.Data.Email)
	assert.Equal(t, model.RoleStandard, parsed.Data.Role)
}

func TestSignupConflict(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/auth/signup", map[string]string{
		"name": "Dup", "email": "shopper@example.com", "password": "password123",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ALREADY_EXISTS", decodeErrorCode(t, resp))
}

func TestProfileWithoutCookie(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/v1/auth/profile")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", decodeErrorCode(t, resp))
}

func TestProfileWithExpiredTokenReportsTokenExpired(t *testing.T) {
	env := newTestEnv(t)

	// Same secret, negative lifetime: mints an already-expired token.
	expiredCodec, err := token.NewCodec("access-secret", -time.Minute, "refresh-secret", 168*time.Hour)
	require.NoError(t, err)
	expired, err := expiredCodec.Issue(token.Access, "shopper-1")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/auth/profile", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: service.AccessCookieName, Value: expired})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_EXPIRED", decodeErrorCode(t, resp))
}

func TestRefreshIssuesNewAccessCookie(t *testing.T) {
	env := newTestEnv(t)

	loginResp := env.login(t, "shopper@example.com")
	require.Equal(t, http.StatusOK, loginResp.StatusCode)

	resp := env.postJSON(t, "/api/v1/auth/refresh-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	access := cookieByName(resp.Cookies(), service.AccessCookieName)
	require.NotNil(t, access)

	subject, err := env.codec.Verify(token.Access, access.Value)
	require.NoError(t, err)
	assert.Equal(t, "shopper-1", subject)

	// No rotation: the refresh cookie is not reissued on this path.
	assert.Nil(t, cookieByName(resp.Cookies(), service.RefreshCookieName))
}

func TestRefreshWithoutCookie(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/auth/refresh-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutClearsCookiesAndRevokesRefresh(t *testing.T) {
	env := newTestEnv(t)

	loginResp := env.login(t, "shopper@example.com")
	require.Equal(t, http.StatusOK, loginResp.StatusCode)
	refresh := cookieByName(loginResp.Cookies(), service.RefreshCookieName)
	require.NotNil(t, refresh)

	logoutResp := env.postJSON(t, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, logoutResp.StatusCode)
	for _, name := range []string{service.AccessCookieName, service.RefreshCookieName} {
		cleared := cookieByName(logoutResp.Cookies(), name)
		require.NotNil(t, cleared, "cookie %s", name)
		assert.Less(t, cleared.MaxAge, 0)
	}

	// The pre-logout refresh token has not expired cryptographically but
	// its store entry is gone.
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/auth/refresh-token", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: service.RefreshCookieName, Value: refresh.Value})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/auth/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminSessionsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	loginResp := env.login(t, "admin@example.com")
	require.Equal(t, http.StatusOK, loginResp.StatusCode)

	resp, err := env.client.Get(env.server.URL + "/api/v1/admin/sessions")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Data model.SessionsResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, 1, parsed.Data.ActiveSessions)
}

func TestAdminSessionsForbiddenForStandardRole(t *testing.T) {
	env := newTestEnv(t)

	loginResp := env.login(t, "shopper@example.com")
	require.Equal(t, http.StatusOK, loginResp.StatusCode)

	resp, err := env.client.Get(env.server.URL + "/api/v1/admin/sessions")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	// Role failure, not authentication failure.
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", decodeErrorCode(t, resp))
}

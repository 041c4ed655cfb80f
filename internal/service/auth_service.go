package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"storefront-auth/internal/model"
	"storefront-auth/internal/token"
	"storefront-auth/pkg/apierror"
)

// IdentityStore is the external identity-record collaborator. The session
// issuer reads records for credential checks and creates them on signup;
// it never mutates existing identities.
type IdentityStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.User) error
}

// RefreshStore holds the single live refresh token per subject.
type RefreshStore interface {
	Put(ctx context.Context, subjectID string, token string, ttl time.Duration) error
	Get(ctx context.Context, subjectID string) (string, error)
	Delete(ctx context.Context, subjectID string) error
	Active(ctx context.Context) (int, error)
}

// AuthService mints access/refresh pairs, persists refresh tokens and
// describes their cookie transport.
type AuthService struct {
	codec         *token.Codec
	users         IdentityStore
	refresh       RefreshStore
	secureCookies bool
}

func NewAuthService(codec *token.Codec, users IdentityStore, refresh RefreshStore, secureCookies bool) *AuthService {
	return &AuthService{
		codec:         codec,
		users:         users,
		refresh:       refresh,
		secureCookies: secureCookies,
	}
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (model.TokenPair, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.TokenPair{}, apierror.New("BAD_REQUEST", "email and password are required", "", http.StatusBadRequest)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		// Same answer as a password mismatch so callers cannot probe
		// which emails exist.
		return model.TokenPair{}, invalidCredentials()
	}
	if err != nil {
		return model.TokenPair{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return model.TokenPair{}, invalidCredentials()
	}

	return s.issuePair(ctx, user)
}

func (s *AuthService) Signup(ctx context.Context, name string, email string, password string) (model.TokenPair, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name == "" || email == "" || password == "" {
		return model.TokenPair{}, apierror.New("BAD_REQUEST", "name, email and password are required", "", http.StatusBadRequest)
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return model.TokenPair{}, err
	}
	if exists {
		return model.TokenPair{}, apierror.New("ALREADY_EXISTS", "user already exists", "", http.StatusBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         model.RoleStandard,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.TokenPair{}, err
	}

	return s.issuePair(ctx, user)
}

// Logout deletes the subject's stored refresh token when the presented one
// verifies. A missing or unverifiable token is not an error: logout must
// always succeed from the caller's perspective, and the handler clears the
// cookies regardless.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	subjectID, err := s.codec.Verify(token.Refresh, refreshToken)
	if err != nil {
		return nil
	}

	return s.refresh.Delete(ctx, subjectID)
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself and its store entry are left in place; only the
// 7-day TTL or a logout retires them.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apierror.New("UNAUTHORIZED", "no refresh token provided", "", http.StatusUnauthorized)
	}

	subjectID, err := s.codec.Verify(token.Refresh, refreshToken)
	if err != nil {
		// An expired refresh token also means full re-login, so the
		// expired/invalid split is not surfaced here.
		return "", invalidRefresh()
	}

	stored, err := s.refresh.Get(ctx, subjectID)
	if errors.Is(err, model.ErrTokenNotFound) {
		return "", invalidRefresh()
	}
	if err != nil {
		return "", err
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(refreshToken)) != 1 {
		return "", invalidRefresh()
	}

	return s.codec.Issue(token.Access, subjectID)
}

func (s *AuthService) Profile(ctx context.Context, subjectID string) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, subjectID)
	if err != nil {
		return model.AuthUser{}, err
	}
	return user.AuthUser(), nil
}

func (s *AuthService) ActiveSessions(ctx context.Context) (int, error) {
	return s.refresh.Active(ctx)
}

// VerifyAccessToken satisfies the authorization guard's verifier interface.
func (s *AuthService) VerifyAccessToken(tokenString string) (string, error) {
	return s.codec.Verify(token.Access, tokenString)
}

// ResolveIdentity satisfies the authorization guard's verifier interface.
func (s *AuthService) ResolveIdentity(ctx context.Context, subjectID string) (model.AuthUser, error) {
	return s.Profile(ctx, subjectID)
}

func (s *AuthService) issuePair(ctx context.Context, user model.User) (model.TokenPair, error) {
	accessToken, err := s.codec.Issue(token.Access, user.ID)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, err := s.codec.Issue(token.Refresh, user.ID)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.refresh.Put(ctx, user.ID, refreshToken, s.codec.TTL(token.Refresh)); err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.AuthUser(),
	}, nil
}

func invalidCredentials() error {
	return apierror.New("UNAUTHORIZED", "invalid email or password", "", http.StatusUnauthorized)
}

func invalidRefresh() error {
	return apierror.New("UNAUTHORIZED", "refresh token is invalid", "", http.StatusUnauthorized)
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"roomlink/internal/credentials"
	"roomlink/internal/httpclient"
	"roomlink/internal/models"
	"roomlink/pkg/logger"
)

type API interface {
	Do(ctx context.Context, method, path string, in, out interface{}) error
}

// Service signs the client in against the backend and keeps the resulting
// token in the credential store.
type Service struct {
	api   API
	store credentials.Store
}

func NewService(api API, store credentials.Store) *Service {
	return &Service{
		api:   api,
		store: store,
	}
}

func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) error {
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return ErrMissingFields
	}

	var resp models.TokenResponse
	body := map[string]interface{}{"user": req}
	if err := s.api.Do(ctx, http.MethodPost, "/api/register", body, &resp); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}
	return s.storeToken(ctx, resp.Token)
}

func (s *Service) Login(ctx context.Context, req *models.LoginRequest) error {
	if req.Email == "" || req.Password == "" {
		return ErrMissingFields
	}

	var resp models.TokenResponse
	if err := s.api.Do(ctx, http.MethodPost, "/api/login", req, &resp); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	return s.storeToken(ctx, resp.Token)
}

func (s *Service) Me(ctx context.Context) (*models.User, error) {
	var resp models.MeResponse
	if err := s.api.Do(ctx, http.MethodGet, "/api/me", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	if resp.User == nil {
		return nil, ErrNoUser
	}
	return resp.User, nil
}

// RefreshIdentity loads the signed-in user. A 401 or 403 means the stored
// token is no longer accepted, so it is cleared.
func (s *Service) RefreshIdentity(ctx context.Context) (*models.User, error) {
	user, err := s.Me(ctx)
	if err == nil {
		return user, nil
	}

	switch httpclient.StatusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		logger.Warn("session token rejected, signing out")
		if clearErr := s.store.Clear(ctx); clearErr != nil {
			logger.Error("Error clearing token: %v", clearErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return nil, err
}

func (s *Service) SignOut(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// Identity resolves who this client is. The backend is asked first; when it
// cannot be reached the unverified token claims are used.
func (s *Service) Identity(ctx context.Context, fallbackName string) (models.Identity, error) {
	user, err := s.RefreshIdentity(ctx)
	if err == nil {
		name := user.DisplayName()
		if name == "" {
			name = fallbackName
		}
		return models.Identity{ID: user.ID, Name: name}, nil
	}
	if errors.Is(err, ErrUnauthenticated) || httpclient.StatusOf(err) != 0 {
		return models.Identity{}, err
	}

	token, tokenErr := s.store.Token(ctx)
	if tokenErr != nil {
		return models.Identity{}, tokenErr
	}
	claims, claimsErr := credentials.ParseClaims(token)
	if claimsErr != nil {
		return models.Identity{}, err
	}
	logger.Warn("identity from token claims: %v", err)

	name := claims.Name
	if name == "" {
		name = fallbackName
	}
	return models.Identity{ID: claims.UserID, Name: name}, nil
}

func (s *Service) storeToken(ctx context.Context, token string) error {
	if credentials.Normalize(token) == "" {
		return ErrNoToken
	}
	if err := s.store.SetToken(ctx, token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
)

const DefaultProfile = "default"

var ErrIncompleteCredentials = errors.New("user id, email and access token are required")

// AuthService manages the credentials a sign-in leaves in the credential store.
type AuthService struct {
	store ports.CredentialStore
	clock ports.Clock
}

func NewAuthService(store ports.CredentialStore, clock ports.Clock) *AuthService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &AuthService{store: store, clock: clock}
}

func (s *AuthService) Login(ctx context.Context, cmd LoginCommand) (domain.User, error) {
	profile := profileOrDefault(cmd.Profile)
	creds := domain.Credentials{
		UserID:      strings.TrimSpace(cmd.UserID),
		Email:       strings.TrimSpace(cmd.Email),
		AccessToken: strings.TrimSpace(cmd.AccessToken),
		ExpiresAt:   cmd.ExpiresAt,
	}
	if creds.UserID == "" || creds.Email == "" || creds.AccessToken == "" {
		return domain.User{}, ErrIncompleteCredentials
	}
	if creds.Expired(s.clock.Now()) {
		return domain.User{}, fmt.Errorf("access token expired at %s", creds.ExpiresAt.Format(time.RFC3339))
	}

	previous, err := s.store.Load(ctx, profile)
	hadPrevious := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("load credentials: %w", err)
	}

	if err := s.store.Save(ctx, profile, creds); err != nil {
		if hadPrevious {
			if rollbackErr := s.store.Save(ctx, profile, previous); rollbackErr != nil {
				return domain.User{}, fmt.Errorf("save credentials and restore previous: %w", errors.Join(err, rollbackErr))
			}
		}
		return domain.User{}, fmt.Errorf("save credentials: %w", err)
	}

	return domain.User{ID: creds.UserID, Email: creds.Email}, nil
}

func (s *AuthService) Logout(ctx context.Context, profile string) error {
	if err := s.store.Delete(ctx, profileOrDefault(profile)); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

func (s *AuthService) WhoAmI(ctx context.Context, profile string) (Identity, error) {
	profile = profileOrDefault(profile)
	creds, err := s.store.Load(ctx, profile)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Identity{}, domain.ErrUnauthenticated
		}
		return Identity{}, fmt.Errorf("load credentials: %w", err)
	}
	if creds.Expired(s.clock.Now()) {
		return Identity{}, domain.ErrUnauthenticated
	}

	identity := Identity{User: domain.User{ID: creds.UserID, Email: creds.Email}, Profile: profile}
	if !creds.ExpiresAt.IsZero() {
		identity.ExpiresAt = creds.ExpiresAt.Format(time.RFC3339)
	}
	return identity, nil
}

func profileOrDefault(profile string) string {
	if strings.TrimSpace(profile) == "" {
		return DefaultProfile
	}
	return strings.TrimSpace(profile)
}

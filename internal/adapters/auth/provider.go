package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
)

// CredentialProvider answers who is signed in from a credential store profile.
// Missing or expired credentials are reported as domain.ErrUnauthenticated.
type CredentialProvider struct {
	store   ports.CredentialStore
	clock   ports.Clock
	profile string
}

var _ ports.AuthProvider = (*CredentialProvider)(nil)

func NewCredentialProvider(store ports.CredentialStore, clock ports.Clock, profile string) *CredentialProvider {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if strings.TrimSpace(profile) == "" {
		profile = "default"
	}
	return &CredentialProvider{store: store, clock: clock, profile: profile}
}

func (p *CredentialProvider) GetUser(ctx context.Context) (domain.User, error) {
	creds, err := p.current(ctx)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: creds.UserID, Email: creds.Email}, nil
}

func (p *CredentialProvider) GetSession(ctx context.Context) (domain.Session, error) {
	creds, err := p.current(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	if creds.AccessToken == "" {
		return domain.Session{}, fmt.Errorf("profile %q has no access token: %w", p.profile, domain.ErrUnauthenticated)
	}
	return domain.Session{AccessToken: creds.AccessToken}, nil
}

func (p *CredentialProvider) current(ctx context.Context) (domain.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return domain.Credentials{}, err
	}

	creds, err := p.store.Load(ctx, p.profile)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Credentials{}, fmt.Errorf("profile %q: %w", p.profile, domain.ErrUnauthenticated)
		}
		return domain.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	if creds.UserID == "" {
		return domain.Credentials{}, fmt.Errorf("profile %q has no user id: %w", p.profile, domain.ErrUnauthenticated)
	}
	if creds.Expired(p.clock.Now()) {
		return domain.Credentials{}, fmt.Errorf("profile %q expired: %w", p.profile, domain.ErrUnauthenticated)
	}
	return creds, nil
}

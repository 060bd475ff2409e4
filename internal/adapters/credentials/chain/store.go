package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/botsmith/internal/adapters/credentials/file"
	passstore "github.com/bnema/botsmith/internal/adapters/credentials/pass"
	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
)

// Store tries primary first and falls back to the second backend on any
// failure other than cancellation.
type Store struct {
	primary  ports.CredentialStore
	fallback ports.CredentialStore
}

var _ ports.CredentialStore = (*Store)(nil)

var (
	errNilPrimaryStore  = errors.New("primary credential store is nil")
	errNilFallbackStore = errors.New("fallback credential store is nil")
)

func NewStore(primary ports.CredentialStore, fallback ports.CredentialStore) (*Store, error) {
	if primary == nil {
		return nil, errNilPrimaryStore
	}
	if fallback == nil {
		return nil, errNilFallbackStore
	}

	return &Store{primary: primary, fallback: fallback}, nil
}

func NewPassFirstWithFileFallback(fileRoot string) (*Store, error) {
	return NewStore(passstore.NewStore(), filestore.NewStore(fileRoot))
}

func (s *Store) Save(ctx context.Context, profile string, creds domain.Credentials) error {
	err := s.primary.Save(ctx, profile, creds)
	if err == nil {
		return nil
	}
	if shouldSkipFallback(err) {
		return err
	}

	fallbackErr := s.fallback.Save(ctx, profile, creds)
	if fallbackErr == nil {
		return nil
	}

	return fmt.Errorf("primary backend save failed: %w; fallback backend save failed: %w", err, fallbackErr)
}

func (s *Store) Load(ctx context.Context, profile string) (domain.Credentials, error) {
	creds, err := s.primary.Load(ctx, profile)
	if err == nil {
		return creds, nil
	}
	if shouldSkipFallback(err) {
		return domain.Credentials{}, err
	}

	fallbackCreds, fallbackErr := s.fallback.Load(ctx, profile)
	if fallbackErr == nil {
		return fallbackCreds, nil
	}
	if errors.Is(err, domain.ErrNotFound) && errors.Is(fallbackErr, domain.ErrNotFound) {
		return domain.Credentials{}, fmt.Errorf("credentials %q: %w", profile, domain.ErrNotFound)
	}

	return domain.Credentials{}, fmt.Errorf("primary backend load failed: %w; fallback backend load failed: %w", err, fallbackErr)
}

// Delete clears both backends so a stale fallback copy cannot resurrect a
// signed-out profile.
func (s *Store) Delete(ctx context.Context, profile string) error {
	err := s.primary.Delete(ctx, profile)
	if shouldSkipFallback(err) {
		return err
	}

	fallbackErr := s.fallback.Delete(ctx, profile)
	switch {
	case err == nil || fallbackErr == nil:
		return nil
	default:
		return fmt.Errorf("primary backend delete failed: %w; fallback backend delete failed: %w", err, fallbackErr)
	}
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

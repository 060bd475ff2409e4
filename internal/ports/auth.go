package ports

import (
	"context"

	"github.com/bnema/botsmith/internal/domain"
)

// AuthProvider returns domain.ErrUnauthenticated when nobody is signed in.
type AuthProvider interface {
	GetUser(ctx context.Context) (domain.User, error)
	GetSession(ctx context.Context) (domain.Session, error)
}

type CredentialStore interface {
	Load(ctx context.Context, profile string) (domain.Credentials, error)
	Save(ctx context.Context, profile string, creds domain.Credentials) error
	Delete(ctx context.Context, profile string) error
}

package ports

import (
	"context"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
)

// OnCreated runs inside the registration transaction after the identity row
// is written. Returning an error rolls the registration back.
type OnCreated func(ctx context.Context, user *domain.User) error

// CredentialStore defines persistence of identity records.
type CredentialStore interface {
	// Create checks username and email uniqueness and inserts user in one
	// transaction, then runs onCreated before committing. Returns
	// domain.ErrUserExists on a uniqueness conflict.
	Create(ctx context.Context, user *domain.User, onCreated OnCreated) (*domain.User, error)

	// FindByLogin resolves identifier against username or email. A missing
	// identity is reported as (nil, nil).
	FindByLogin(ctx context.Context, identifier string) (*domain.User, error)

	// FindByID returns domain.ErrUserNotFound when the identity is absent or
	// soft-deleted.
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// HasProfile reports whether the role-specific profile row exists.
	HasProfile(ctx context.Context, id string, role domain.Role) (bool, error)

	// ReplacePasswordHash overwrites the stored hash as a whole value.
	ReplacePasswordHash(ctx context.Context, id, hash string) error

	SetAdmin(ctx context.Context, id string, admin bool) error

	Ping(ctx context.Context) error
}

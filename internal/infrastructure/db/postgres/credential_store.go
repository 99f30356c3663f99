package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
	"github.com/lyySpace/DBMS-FinalProj/internal/core/ports"
)

const (
	storeName       = "postgres"
	uniqueViolation = "23505"

	userColumns = `user_id::text, username, email, password, real_name, nickname, role, is_admin, registered_at, is_deleted`
)

var profileTables = map[domain.Role]string{
	domain.RoleStudent:    "student_profile",
	domain.RoleDepartment: "department_profile",
	domain.RoleCompany:    "company_profile",
}

// CredentialStore persists identities in the users table.
type CredentialStore struct {
	pool *pgxpool.Pool
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// Create runs the uniqueness check, the insert and onCreated in a single
// transaction. The unique constraints catch registrations racing past the
// check.
func (s *CredentialStore) Create(ctx context.Context, user *domain.User, onCreated ports.OnCreated) (*domain.User, error) {
	var created *domain.User

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var taken bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)`,
			user.Username, user.Email,
		).Scan(&taken); err != nil {
			return err
		}
		if taken {
			return domain.ErrUserExists
		}

		u, err := scanUser(tx.QueryRow(ctx, `
			INSERT INTO users (username, email, password, real_name, nickname, role, is_admin, registered_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+userColumns,
			user.Username, user.Email, user.PasswordHash, user.RealName, user.Nickname,
			string(user.Role), user.IsAdmin, user.RegisteredAt,
		))
		if err != nil {
			return err
		}

		if onCreated != nil {
			if err := onCreated(ctx, u); err != nil {
				return err
			}
		}
		created = u
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) || isUniqueViolation(err) {
			return nil, domain.ErrUserExists
		}
		return nil, domain.Infra(storeName, "create user", err)
	}
	return created, nil
}

func (s *CredentialStore) FindByLogin(ctx context.Context, identifier string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE (username = $1 OR email = $1) AND NOT is_deleted
		ORDER BY (username = $1) DESC
		LIMIT 1`, identifier))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Infra(storeName, "find user by login", err)
	}
	return u, nil
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	u, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE user_id = $1 AND NOT is_deleted`, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, domain.Infra(storeName, "find user by id", err)
	}
	return u, nil
}

func (s *CredentialStore) HasProfile(ctx context.Context, id string, role domain.Role) (bool, error) {
	table, ok := profileTables[role]
	if !ok {
		return false, nil
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE user_id = $1)`, uid,
	).Scan(&exists); err != nil {
		return false, domain.Infra(storeName, "check profile", err)
	}
	return exists, nil
}

// ReplacePasswordHash writes the new hash in a single UPDATE.
func (s *CredentialStore) ReplacePasswordHash(ctx context.Context, id, hash string) error {
	return s.updateOne(ctx, "replace password hash",
		`UPDATE users SET password = $2 WHERE user_id = $1 AND NOT is_deleted`, id, hash)
}

func (s *CredentialStore) SetAdmin(ctx context.Context, id string, admin bool) error {
	return s.updateOne(ctx, "set admin",
		`UPDATE users SET is_admin = $2 WHERE user_id = $1 AND NOT is_deleted`, id, admin)
}

func (s *CredentialStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return domain.Infra(storeName, "ping", err)
	}
	return nil
}

func (s *CredentialStore) updateOne(ctx context.Context, op, query, id string, arg any) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return domain.ErrUserNotFound
	}
	tag, err := s.pool.Exec(ctx, query, uid, arg)
	if err != nil {
		return domain.Infra(storeName, op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.RealName,
		&u.Nickname,
		&role,
		&u.IsAdmin,
		&u.RegisteredAt,
		&u.IsDeleted,
	); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

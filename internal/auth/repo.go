package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pocketledger/pocketledger/internal/platform/db"
)

const emailUniqueConstraint = "users_email_key"

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, in NewUser) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	q db.Querier
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(q db.Querier) *PGRepository {
	return &PGRepository{q: q}
}

const userColumns = `id, email, COALESCE(full_name, ''), hashed_password, is_deleted, created_at, updated_at`

// FindByEmail fetches a user by case-insensitive email, including soft-deleted
// rows; callers decide whether the account is usable.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new account.
func (r *PGRepository) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO users (email, full_name, hashed_password)
VALUES ($1, NULLIF($2, ''), $3)
RETURNING `+userColumns, in.Email, in.FullName, in.PasswordHash)
	user, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err, emailUniqueConstraint) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.IsDeleted, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

var _ Repository = (*PGRepository)(nil)

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/watcherhq/watcher/internal/models"
)

// ErrDuplicateEmail is returned when registering an email that already has an
// account.
var ErrDuplicateEmail = fmt.Errorf("email already registered")

// UserRepository handles account storage.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user. The caller supplies the bcrypt hash.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, user.ID, strings.ToLower(user.Email), user.PasswordHash).Scan(&user.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "users_email_key") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID returns a user by ID, or ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail returns a user by email, or ErrNotFound.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", strings.ToLower(email))
}

func (r *UserRepository) getBy(ctx context.Context, column, value string) (*models.User, error) {
	user := &models.User{}

	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE %s = $1
	`, column), value).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

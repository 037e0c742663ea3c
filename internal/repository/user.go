package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/launchlog/launchlog-go/internal/model"
)

const mysqlDuplicateEntry = 1062

// MySQLUserRepository handles account persistence in MySQL.
type MySQLUserRepository struct {
	db *sql.DB
}

// NewMySQLUserRepository creates a new MySQLUserRepository.
func NewMySQLUserRepository(db *sql.DB) *MySQLUserRepository {
	return &MySQLUserRepository{db: db}
}

// Create inserts a new account. The caller assigns the id.
func (r *MySQLUserRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (id, email, name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.Name, user.PasswordHash, string(user.Role), user.CreatedAt)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDuplicateEmail
		}
		return unavailable("create user", err)
	}
	return nil
}

// GetByEmail retrieves an account by email address.
func (r *MySQLUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT id, email, name, password_hash, role, created_at FROM users WHERE email = ?`
	return r.getOne(ctx, query, email)
}

// GetByID retrieves an account by id.
func (r *MySQLUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT id, email, name, password_hash, role, created_at FROM users WHERE id = ?`
	return r.getOne(ctx, query, id)
}

func (r *MySQLUserRepository) getOne(ctx context.Context, query string, arg string) (*model.User, error) {
	user := &model.User{}
	var role string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &role, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, unavailable("get user", err)
	}
	user.Role = model.Role(role)

	return user, nil
}

// List returns all accounts, newest first.
func (r *MySQLUserRepository) List(ctx context.Context) ([]model.User, error) {
	query := `SELECT id, email, name, password_hash, role, created_at FROM users ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("list users", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		var role string
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
			return nil, unavailable("list users", err)
		}
		u.Role = model.Role(role)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list users", err)
	}

	return users, nil
}

// UpdatePasswordHash replaces the stored hash of an account.
func (r *MySQLUserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return unavailable("update password hash", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return unavailable("update password hash", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes an account.
func (r *MySQLUserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return unavailable("delete user", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return unavailable("delete user", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// isDuplicateEntryError checks for MySQL error 1062 (duplicate key).
func isDuplicateEntryError(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

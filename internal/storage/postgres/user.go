package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadline/storefront/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, email, name, role, COALESCE(password_hash, ''), wishlist, created_at`

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.Wishlist, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get user %q", id)
	}
	return u, nil
}

// GetByEmail returns a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get user by email %q", email)
	}
	return u, nil
}

// List returns all users, newest first.
func (r *UserRepository) List(ctx context.Context) ([]user.User, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Create inserts a new user. An empty password hash is stored as NULL
// (OAuth-only accounts).
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	var hash *string
	if u.PasswordHash != "" {
		hash = &u.PasswordHash
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, wishlist)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.Role, hash, u.Wishlist,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return user.ErrEmailTaken
		}
		return errors.Wrapf(err, "create user %q", u.Email)
	}
	return nil
}

// UpdateRole changes a user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role user.Role) error {
	tag, err := r.pool.Exec(ctx, "UPDATE users SET role = $2 WHERE id = $1", id, role)
	if err != nil {
		return errors.Wrapf(err, "update user %q role", id)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// Delete removes a user; addresses and API keys cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return errors.Wrapf(err, "delete user %q", id)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// ListAddresses returns a user's addresses, default first.
func (r *UserRepository) ListAddresses(ctx context.Context, userID string) ([]user.Address, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, line1, line2, city, state, postal_code, country, phone, is_default
		FROM addresses WHERE user_id = $1
		ORDER BY is_default DESC, id`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	defer rows.Close()

	var addresses []user.Address
	for rows.Next() {
		var a user.Address
		err := rows.Scan(&a.ID, &a.UserID, &a.Line1, &a.Line2, &a.City, &a.State,
			&a.PostalCode, &a.Country, &a.Phone, &a.IsDefault)
		if err != nil {
			return nil, errors.Wrap(err, "scan address")
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

// CreateAddress inserts an address. Marking it default clears the previous
// default in the same transaction, keeping at most one per user.
func (r *UserRepository) CreateAddress(ctx context.Context, a *user.Address) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin create address")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if a.IsDefault {
		_, err := tx.Exec(ctx,
			"UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND is_default",
			a.UserID,
		)
		if err != nil {
			return errors.Wrap(err, "clear default address")
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO addresses (id, user_id, line1, line2, city, state, postal_code, country, phone, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.UserID, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, a.Phone, a.IsDefault,
	)
	if err != nil {
		return errors.Wrap(err, "create address")
	}

	return tx.Commit(ctx)
}

// AddressBelongsTo reports whether the address exists and is owned by the user.
func (r *UserRepository) AddressBelongsTo(ctx context.Context, addressID, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM addresses WHERE id = $1 AND user_id = $2)",
		addressID, userID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check address ownership")
	}
	return exists, nil
}

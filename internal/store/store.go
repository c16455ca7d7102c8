package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/PortNumber53/edenthought/backend/internal/models"
)

const (
	defaultPageSize = 200

	// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
	uniqueViolation = "23505"
)

// ErrUserNotFound is returned when a user is not found
var ErrUserNotFound = errors.New("user not found")

// Store provides database-backed accessors for application data.
type Store struct {
	db *sql.DB
}

// New creates a Store using the provided sql.DB connection.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &Store{db: db}, nil
}

// GetUser returns the user with the given ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var (
		u         models.User
		firstName sql.NullString
		lastName  sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, is_writer FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &firstName, &lastName, &u.IsWriter)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	u.FirstName = nullStringPtr(firstName)
	u.LastName = nullStringPtr(lastName)
	return &u, nil
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

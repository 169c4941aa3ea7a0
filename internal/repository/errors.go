package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrShortlinkNotFound    = errors.New("shortlink not found")
	ErrPathExists           = errors.New("shortlink path already exists")
	ErrParameterSetNotFound = errors.New("parameter set not found")
	ErrParameterSetExists   = errors.New("parameter set already exists")
	ErrTargetNotFound       = errors.New("target not found")
	ErrAliasNotFound        = errors.New("path alias not found")
)

const (
	uniqueViolationCode     = "23505"
	shortlinkPathConstraint = "shortlinks_path_unique"
)

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
// An empty constraint matches any unique constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != uniqueViolationCode {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

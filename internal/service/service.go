// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"

	"github.com/penshort/shortlink/internal/errx"
	"github.com/penshort/shortlink/internal/repository"
)

// NegativeCache remembers paths that did not resolve. *cache.Cache implements it.
// SetNegativeCache must skip the write when ClearNegativeCache ran for the path
// after generation was returned by IsNegativelyCached.
type NegativeCache interface {
	IsNegativelyCached(ctx context.Context, path string) (cached bool, generation int64, err error)
	SetNegativeCache(ctx context.Context, path string, generation int64) (bool, error)
	ClearNegativeCache(ctx context.Context, paths ...string) error
}

// PathChecker reports collisions with host routes and aliases. *routing.Checker implements it.
type PathChecker interface {
	RouteConflict(ctx context.Context, path string) (bool, error)
	AliasConflict(ctx context.Context, path string) (bool, error)
}

// Service errors.
var (
	ErrNotFound = errors.New("shortlink not found")
	ErrExpired  = errors.New("shortlink expired")
)

// storeErr classifies a repository error for op.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrShortlinkNotFound),
		errors.Is(err, repository.ErrParameterSetNotFound),
		errors.Is(err, repository.ErrTargetNotFound),
		errors.Is(err, repository.ErrAliasNotFound):
		return errx.E(op, errx.NotFound, err)
	case errors.Is(err, repository.ErrPathExists),
		errors.Is(err, repository.ErrParameterSetExists):
		return errx.E(op, errx.Conflict, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errx.E(op, errx.Unavailable, err)
	default:
		return errx.E(op, errx.Persistence, err)
	}
}

func invalid(op string, msgs ...string) error {
	return errx.E(op, errx.Invalid, errx.NewValidation(msgs...))
}

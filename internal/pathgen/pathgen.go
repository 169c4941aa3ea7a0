// Package pathgen generates and validates shortlink paths.
// All functions are safe for concurrent use.
package pathgen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/penshort/shortlink/internal/model"
)

const (
	// Alphabet excludes 0, O, 1, I, l, i and o.
	Alphabet = "123456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ-_"

	// MinLength is the shortest slug Generate will produce.
	MinLength = 4

	// MaxAttempts bounds rejection sampling in Generate.
	MaxAttempts = 100
)

// ErrExhausted is returned when no free path was found within MaxAttempts.
var ErrExhausted = fmt.Errorf("unable to generate unique shortlink path after %d attempts", MaxAttempts)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ExistsFunc reports whether a shortlink other than excludeID already owns path.
type ExistsFunc func(ctx context.Context, path string, excludeID int64) (bool, error)

// ConflictFunc reports whether a full path collides with something outside the shortlink table.
type ConflictFunc func(ctx context.Context, fullPath string) (bool, error)

// Generate returns a free path of the form prefix/slug.
func Generate(ctx context.Context, prefix string, length int, exists ExistsFunc) (string, error) {
	if length < MinLength {
		length = MinLength
	}

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		slug, err := RandomSlug(length)
		if err != nil {
			return "", err
		}

		path := model.FullPath(prefix, slug)
		taken, err := exists(ctx, path, 0)
		if err != nil {
			return "", fmt.Errorf("failed to check path %q: %w", path, err)
		}
		if !taken {
			return path, nil
		}
	}

	return "", ErrExhausted
}

// RandomSlug draws length characters uniformly from Alphabet using crypto/rand.
func RandomSlug(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}

	max := big.NewInt(int64(len(Alphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		b[i] = Alphabet[n.Int64()]
	}
	return string(b), nil
}

// Validator checks custom slugs against every source of path collisions.
type Validator struct {
	Exists        ExistsFunc
	RouteConflict ConflictFunc
	AliasConflict ConflictFunc
}

// ValidateCustomSlug returns the messages describing why slug cannot be used.
// A format error is returned alone; otherwise every applicable collision is reported.
// A nil or empty result means the slug is usable.
func (v Validator) ValidateCustomSlug(ctx context.Context, slug, prefix string, excludeID int64) ([]string, error) {
	if !slugPattern.MatchString(slug) {
		return []string{"The custom path may only contain letters, numbers, hyphens, and underscores."}, nil
	}

	fullPath := model.FullPath(prefix, slug)
	var msgs []string

	if v.Exists != nil {
		taken, err := v.Exists(ctx, fullPath, excludeID)
		if err != nil {
			return nil, fmt.Errorf("failed to check path %q: %w", fullPath, err)
		}
		if taken {
			msgs = append(msgs, fmt.Sprintf("A shortlink with the path %s already exists.", fullPath))
		}
	}

	if v.AliasConflict != nil {
		conflict, err := v.AliasConflict(ctx, "/"+fullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to check alias for %q: %w", fullPath, err)
		}
		if conflict {
			msgs = append(msgs, fmt.Sprintf("The path /%s conflicts with an existing path alias.", fullPath))
		}
	}

	if v.RouteConflict != nil {
		conflict, err := v.RouteConflict(ctx, "/"+fullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to check route for %q: %w", fullPath, err)
		}
		if conflict {
			msgs = append(msgs, fmt.Sprintf("The path /%s conflicts with an existing route.", fullPath))
		}
	}

	return msgs, nil
}

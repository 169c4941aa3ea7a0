// Package auth generates admin API keys for the ADMIN_API_KEYS setting.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Key format: slk_{env}_{prefix}_{secret}
// Example: slk_live_7a9x3k_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const (
	KeyPrefixLen = 6  // Visible prefix length (hex encoded 3 bytes)
	KeySecretLen = 32 // Secret length (hex encoded 16 bytes)
)

// Environment indicators for key prefix.
const (
	EnvLive = "live"
	EnvTest = "test"
)

var (
	// ErrInvalidKeyFormat indicates the key format is invalid.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	keyFormatRegex      = regexp.MustCompile(`^slk_(live|test)_([a-f0-9]{6})_([a-f0-9]{32})$`)
	// Names end up in a comma-separated "key:name" list.
	keyNameRegex = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
)

// GeneratedKey is a freshly generated admin key.
type GeneratedKey struct {
	Plaintext string
	Prefix    string
	Name      string
}

// Entry returns the "key:name" pair to append to ADMIN_API_KEYS.
func (k *GeneratedKey) Entry() string {
	return k.Plaintext + ":" + k.Name
}

// GenerateAPIKey creates a new key for env. Unknown environments default to live;
// an empty name defaults to the key prefix.
func GenerateAPIKey(env, name string) (*GeneratedKey, error) {
	if env != EnvLive && env != EnvTest {
		env = EnvLive
	}

	prefixBytes := make([]byte, KeyPrefixLen/2)
	if _, err := rand.Read(prefixBytes); err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	prefix := hex.EncodeToString(prefixBytes)

	secretBytes := make([]byte, KeySecretLen/2)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = prefix
	}
	if !keyNameRegex.MatchString(name) {
		return nil, fmt.Errorf("invalid key name %q: use letters, digits, '.', '_' or '-'", name)
	}

	return &GeneratedKey{
		Plaintext: fmt.Sprintf("slk_%s_%s_%s", env, prefix, hex.EncodeToString(secretBytes)),
		Prefix:    prefix,
		Name:      name,
	}, nil
}

// ParsedKey contains the parsed parts of an API key.
type ParsedKey struct {
	Env    string
	Prefix string
	Secret string
}

// ParseAPIKey extracts the components from a plaintext API key.
func ParseAPIKey(key string) (*ParsedKey, error) {
	matches := keyFormatRegex.FindStringSubmatch(key)
	if matches == nil {
		return nil, ErrInvalidKeyFormat
	}

	return &ParsedKey{
		Env:    matches[1],
		Prefix: matches[2],
		Secret: matches[3],
	}, nil
}

// ValidateKeyFormat checks if the key matches the generated format.
func ValidateKeyFormat(key string) bool {
	return keyFormatRegex.MatchString(key)
}

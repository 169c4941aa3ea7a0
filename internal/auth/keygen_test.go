package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	t.Parallel()

	key, err := GenerateAPIKey(EnvLive, "ops")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key.Plaintext, "slk_live_"), key.Plaintext)
	assert.Len(t, key.Prefix, KeyPrefixLen)
	assert.Contains(t, key.Plaintext, key.Prefix)
	assert.True(t, ValidateKeyFormat(key.Plaintext))
	assert.Equal(t, key.Plaintext+":ops", key.Entry())
}

func TestGenerateAPIKey_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  string
	}{
		{"invalid env", "invalid"},
		{"empty env", ""},
		{"prod env", "prod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			key, err := GenerateAPIKey(tt.env, "")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(key.Plaintext, "slk_live_"), key.Plaintext)
			assert.Equal(t, key.Prefix, key.Name)
		})
	}
}

func TestGenerateAPIKey_TestEnv(t *testing.T) {
	t.Parallel()

	key, err := GenerateAPIKey(EnvTest, "ci")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key.Plaintext, "slk_test_"), key.Plaintext)
}

func TestGenerateAPIKey_RejectsBadName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"a,b", "a:b", "has space", strings.Repeat("x", 65)} {
		_, err := GenerateAPIKey(EnvLive, name)
		assert.Error(t, err, name)
	}
}

func TestGenerateAPIKey_UniqueSecrets(t *testing.T) {
	t.Parallel()

	const numKeys = 100
	secrets := make(map[string]bool, numKeys)

	for range numKeys {
		key, err := GenerateAPIKey(EnvLive, "bulk")
		require.NoError(t, err)

		parsed, err := ParseAPIKey(key.Plaintext)
		require.NoError(t, err)
		assert.False(t, secrets[parsed.Secret], "duplicate secret")
		secrets[parsed.Secret] = true
	}
	assert.Len(t, secrets, numKeys)
}

func TestParseAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		key        string
		wantEnv    string
		wantPrefix string
		wantErr    error
	}{
		{name: "valid live key", key: "slk_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", wantEnv: "live", wantPrefix: "abc123"},
		{name: "valid test key", key: "slk_test_def456_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", wantEnv: "test", wantPrefix: "def456"},
		{name: "wrong prefix", key: "pk_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", wantErr: ErrInvalidKeyFormat},
		{name: "wrong env", key: "slk_prod_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", wantErr: ErrInvalidKeyFormat},
		{name: "short prefix", key: "slk_live_abc_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", wantErr: ErrInvalidKeyFormat},
		{name: "short secret", key: "slk_live_abc123_4f8d2e1b", wantErr: ErrInvalidKeyFormat},
		{name: "uppercase hex", key: "slk_live_ABC123_4F8D2E1B9C7A5F3D2E1B9C7A5F3D2E1B", wantErr: ErrInvalidKeyFormat},
		{name: "empty", key: "", wantErr: ErrInvalidKeyFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parsed, err := ParseAPIKey(tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnv, parsed.Env)
			assert.Equal(t, tt.wantPrefix, parsed.Prefix)
		})
	}
}

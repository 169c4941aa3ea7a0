package analytics

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hasher one-way hashes client IP addresses before they are stored.
type Hasher struct {
	key []byte
}

// NewHasher returns a keyed BLAKE2b-256 hasher. Keys longer than 64 bytes are
// digested first; an empty key yields an unkeyed hash.
func NewHasher(key string) *Hasher {
	k := []byte(key)
	if len(k) > blake2b.Size {
		sum := blake2b.Sum512(k)
		k = sum[:]
	}
	return &Hasher{key: k}
}

// Hash returns the hex digest of ip, or "" for an empty ip.
func (h *Hasher) Hash(ip string) string {
	if ip == "" {
		return ""
	}
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// Unreachable: NewHasher bounds the key length.
		sum := blake2b.Sum256([]byte(ip))
		return hex.EncodeToString(sum[:])
	}
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}

package mesh

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// KeySize is the length of network, application and device keys.
const KeySize = 16

// Key is a 128-bit mesh key.
type Key [KeySize]byte

// NewKey returns a key drawn from the operating system CSPRNG.
func NewKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("mesh: generating key: %w", err)
	}
	return k, nil
}

// KeyFromBytes copies b into a Key.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: got %d", ErrInvalidKey, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// IsZero reports whether k is all zeroes.
func (k Key) IsZero() bool {
	return k == Key{}
}

// Hex returns the key in lowercase hex.
func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

func (k Key) String() string {
	return "[redacted]"
}

// LogValue implements slog.LogValuer.
func (k Key) LogValue() slog.Value {
	return slog.StringValue("[redacted]")
}

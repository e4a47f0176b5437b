package client

import (
	"fmt"
	"strings"
	"unicode"
)

// NewKey builds a collection key following the prefix:suffix convention,
// e.g. NewKey("users", "1") is "users:1".
func NewKey(prefix, suffix string) string {
	return prefix + ":" + suffix
}

// SplitKey splits a key at its first colon.
func SplitKey(key string) (prefix, suffix string, ok bool) {
	return strings.Cut(key, ":")
}

// ValidateKey rejects empty keys and keys containing whitespace or control
// characters.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains %U", ErrInvalidKey, key, r)
		}
	}
	return nil
}

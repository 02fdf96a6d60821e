// Package hashing produces the output value for a resolved field: a salted
// SHA-512 digest for hashed fields, the normalized value itself for the
// primary key and other unhashed fields.
package hashing

import (
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"

	"hitchload/internal/catalog"
)

// ErrNoSalt is returned when a hashed field is processed before its salt was
// injected. This is a programming/ordering error, not a data error: salts
// must be fetched from the Contributor Node before streaming starts, so the
// whole run aborts rather than retrying per record.
var ErrNoSalt = errors.New("hashing: salt not set")

// ProduceValue maps a normalized value to its output form for the given field.
func ProduceValue(f *catalog.Field, normalized string) (string, error) {
	if f.Primary || !f.Hashed {
		return normalized, nil
	}
	salt, ok := f.Salt()
	if !ok {
		return "", fmt.Errorf("field %q: %w", f.Name, ErrNoSalt)
	}
	sum := sha512.Sum512([]byte(normalized + salt))
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

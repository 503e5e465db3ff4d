// Package license mints license keys and download tokens and renders the
// three bundled text artifacts (LICENSE.md, README.md, starter-config.json).
// Renderers are pure: same order, features, and captured time produce the
// same bytes.
package license

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// crockford is Crockford base32: 32 symbols, no I, L, O, or U, so keys
// survive being read aloud or retyped.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewKey returns a fresh license key of the form FSK-XXXX-XXXX-XXXX-XXXX.
func NewKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("license: key entropy: %w", err)
	}

	var b strings.Builder
	b.WriteString("FSK")
	for i, by := range buf {
		if i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(crockford[by&31])
	}
	return b.String(), nil
}

package traffic

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
)

// Fingerprint derives the deterministic cache key for a logical operation and
// its parameters. Parameter names are hashed in lexicographic order, so two
// identical requests always yield the same fingerprint regardless of map
// iteration or submission order, and changing any single name or value yields
// a different one.
func Fingerprint(operation string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	io.WriteString(h, operation)
	for _, name := range names {
		// Unit/record separators keep adjacent names and values from
		// colliding ("ab"+"c" vs "a"+"bc").
		io.WriteString(h, "\x1f")
		io.WriteString(h, name)
		io.WriteString(h, "\x1e")
		io.WriteString(h, params[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

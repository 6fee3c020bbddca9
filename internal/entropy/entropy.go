package entropy

import (
	"crypto/rand"
	"strings"
)

// Lowercase Crockford base32. The ambiguous characters i, l, o, and u are
// excluded, which also rules out most English words appearing in output.
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Substrings that must never appear in a generated identifier, since these
// identifiers end up in public URLs. Every entry is expressible in the
// Crockford alphabet (entries containing i/l/o/u could never match), at most
// five characters long, and no entry is a substring of another, keeping the
// per-candidate scan cheap.
var denylist = []string{
	"ass",
	"fag",
	"fart",
	"gay",
	"hag",
	"jap",
	"kkk",
	"krap",
	"nad",
	"rape",
	"sex",
	"tard",
	"terd",
	"wang",
	"wank",
	"xxx",
}

// Generate returns length random characters from the lowercase Crockford
// alphabet, retried with fresh randomness until no denylist substring appears.
func Generate(length int) string {
	for {
		candidate := randomString(length)
		if Clean(candidate) {
			return candidate
		}
	}
}

// Clean reports whether s contains no denylisted substring. The check is
// case-insensitive so it can also vet identifiers from external sources.
func Clean(s string) bool {
	lowered := strings.ToLower(s)
	for _, banned := range denylist {
		if strings.Contains(lowered, banned) {
			return false
		}
	}
	return true
}

func randomString(length int) string {
	if length <= 0 {
		return ""
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process has no usable entropy source;
		// nothing sensible can continue from here.
		panic(err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}

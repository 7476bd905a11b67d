package ilp

import (
	"regexp"
	"strings"
)

// addressPattern matches the ILP address charset: printable ASCII segments
// of letters, digits, underscore, tilde, hyphen and dot, 1-1023 bytes total.
var addressPattern = regexp.MustCompile(`^[A-Za-z0-9_~\-.]+$`)

// ValidateAddress reports whether s is a well-formed ILP address.
func ValidateAddress(s string) error {
	if len(s) == 0 || len(s) > 1023 {
		return ErrInvalidAddress
	}
	if !addressPattern.MatchString(s) {
		return ErrInvalidAddress
	}
	if strings.Contains(s, "..") {
		return ErrInvalidAddress
	}
	return nil
}

// PrefixMatches reports whether prefix (an address, optionally followed by a
// trailing '.') matches destination: either they are byte-identical, or
// destination extends prefix at a segment boundary.
func PrefixMatches(prefix, destination string) bool {
	base := strings.TrimSuffix(prefix, ".")
	if destination == base {
		return true
	}
	return strings.HasPrefix(destination, base+".")
}

// PrefixLen returns the length used to rank competing prefixes: the length of
// the prefix with any trailing dot stripped, so "a.b." and "a.b" rank equally.
func PrefixLen(prefix string) int {
	return len(strings.TrimSuffix(prefix, "."))
}

// SegmentAfter returns the first dot-separated segment of destination that
// comes immediately after prefix, and whether one exists.
func SegmentAfter(prefix, destination string) (string, bool) {
	base := strings.TrimSuffix(prefix, ".")
	rest := strings.TrimPrefix(destination, base+".")
	if rest == destination || rest == "" {
		return "", false
	}
	if idx := strings.IndexByte(rest, '.'); idx >= 0 {
		return rest[:idx], true
	}
	return rest, true
}

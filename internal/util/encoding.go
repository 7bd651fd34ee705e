package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName trims surrounding space and folds compatibility forms so
// that visually identical usernames compare equal.
func NormalizeName(s string) string {
	return norm.NFKC.String(strings.TrimSpace(s))
}

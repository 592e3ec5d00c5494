// Package normalize defines element-name identity and combination keys.
package normalize

import (
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"dailyalchemy/internal/apperr"
)

// MaxNameLength is counted in runes after trimming.
const MaxNameLength = 100

const (
	keySeparator = "|"

	// Reserved operands used by admin placeholder records.
	ReservedOperandA = "_ADMIN"
	ReservedOperandB = "_DEFINED"
	AdminKeyPrefix   = "_admin_"
)

// Key is the canonical identity of an unordered pair of element names.
// Only Combination and ParseKey produce valid keys.
type Key string

func (k Key) String() string { return string(k) }

// Halves splits a key into its two normalized names. Admin placeholder keys
// have no halves.
func (k Key) Halves() (string, string, bool) {
	if k.IsReserved() {
		return "", "", false
	}
	a, b, ok := strings.Cut(string(k), keySeparator)
	return a, b, ok
}

// IsReserved reports whether k is an admin placeholder key.
func (k Key) IsReserved() bool {
	return strings.HasPrefix(string(k), AdminKeyPrefix)
}

// Name canonicalizes an element name: trim, NFC, lowercase.
func Name(s string) (string, error) {
	trimmed := strings.TrimSpace(norm.NFC.String(s))
	if trimmed == "" {
		return "", apperr.New(apperr.KindInvalidName, "name is empty")
	}
	if n := utf8.RuneCountInString(trimmed); n > MaxNameLength {
		return "", apperr.New(apperr.KindInvalidName, "name has %d characters, max %d", n, MaxNameLength)
	}
	if strings.Contains(trimmed, keySeparator) {
		return "", apperr.New(apperr.KindInvalidName, "name may not contain %q", keySeparator)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", apperr.New(apperr.KindInvalidName, "name contains control characters")
		}
	}
	lowered := cases.Lower(language.Und).String(trimmed)
	if IsReservedName(lowered) {
		return "", apperr.New(apperr.KindInvalidName, "name %q is reserved", trimmed)
	}
	return lowered, nil
}

// Display trims and NFC-normalizes a name while keeping its case.
func Display(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// Equal reports whether two names share an identity. Invalid names are never equal.
func Equal(a, b string) bool {
	na, err := Name(a)
	if err != nil {
		return false
	}
	nb, err := Name(b)
	if err != nil {
		return false
	}
	return na == nb
}

// Combination derives the key for the unordered pair (a, b).
func Combination(a, b string) (Key, error) {
	na, err := Name(a)
	if err != nil {
		return "", err
	}
	nb, err := Name(b)
	if err != nil {
		return "", err
	}
	if nb < na {
		na, nb = nb, na
	}
	return Key(na + keySeparator + nb), nil
}

// ParseKey validates a key received from outside, e.g. a URL path segment.
func ParseKey(s string) (Key, error) {
	if strings.HasPrefix(s, AdminKeyPrefix) {
		if len(s) == len(AdminKeyPrefix) {
			return "", apperr.New(apperr.KindInvalidName, "admin key has no slug")
		}
		return Key(s), nil
	}
	a, b, ok := strings.Cut(s, keySeparator)
	if !ok {
		return "", apperr.New(apperr.KindInvalidName, "key %q has no separator", s)
	}
	k, err := Combination(a, b)
	if err != nil {
		return "", err
	}
	if string(k) != s {
		return "", apperr.New(apperr.KindInvalidName, "key %q is not canonical", s)
	}
	return k, nil
}

// IsReservedName reports whether a lowercase name is one of the reserved operands.
func IsReservedName(lowered string) bool {
	return lowered == strings.ToLower(ReservedOperandA) || lowered == strings.ToLower(ReservedOperandB)
}

// AdminKey builds the synthetic placeholder key for a target name. The slug
// keeps letters and digits; when that drops anything from the identity, a
// digest of the full identity is appended so distinct names never share a key.
func AdminKey(target string) (Key, error) {
	n, err := Name(target)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	dash := false
	for _, r := range n {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "x"
	}
	if slug != n {
		sum := blake2b.Sum256([]byte(n))
		slug += "-" + hex.EncodeToString(sum[:4])
	}
	return Key(AdminKeyPrefix + slug), nil
}

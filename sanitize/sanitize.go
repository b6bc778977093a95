package sanitize

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dhcgn/eml-extract/textnorm"
)

// Placeholder replaces names that are empty after normalization.
const Placeholder = "no subject"

// MaxBytes caps the length of a produced name.
const MaxBytes = 200

const reserved = `<>:"/\|?*`

// FileName maps raw into a name that is safe to use as a single path
// element. It never returns an empty string and never fails: if anything
// goes wrong a random UUID is returned instead.
func FileName(raw string) (name string) {
	defer func() {
		if r := recover(); r != nil {
			name = uuid.NewString()
		}
	}()

	name = strings.TrimSpace(textnorm.Normalize(raw))
	if name == "" {
		name = Placeholder
	}

	name = strings.Map(replaceReserved, name)
	if strings.Trim(name, ".") == "" {
		name = strings.Repeat("_", len(name))
	}
	return truncate(name, MaxBytes)
}

func replaceReserved(r rune) rune {
	if r < 0x20 || strings.ContainsRune(reserved, r) {
		return '_'
	}
	return r
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

package models

import "strings"

// minPhoneDigits keeps a stray digit or two from matching every stored phone
// number by substring.
const minPhoneDigits = 6

// Identifier is a login identifier after normalization. Email identifiers
// are trimmed and lowercased. Anything without '@' is a phone number reduced
// to its digits.
type Identifier struct {
	Value string
	Email bool
}

func NormalizeIdentifier(raw string) Identifier {
	trimmed := strings.TrimSpace(raw)
	if strings.Contains(trimmed, "@") {
		return Identifier{Value: strings.ToLower(trimmed), Email: true}
	}
	return Identifier{Value: DigitsOnly(trimmed)}
}

// Searchable reports whether the identifier can be looked up at all.
func (i Identifier) Searchable() bool {
	if i.Email {
		return i.Value != ""
	}
	return len(i.Value) >= minPhoneDigits
}

// DigitsOnly strips everything but ASCII digits, so "+1 (555) 010-0199"
// becomes "15550100199".
func DigitsOnly(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

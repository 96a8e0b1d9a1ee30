// Package reply turns raw inbound message text into a delivery intent.
package reply

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold removes diacritics, so "Sí" becomes "Si" and "Ñ" becomes "N".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize returns the uppercase A-Z letters of body with everything else
// dropped. It never fails; an empty body gives an empty string.
func Normalize(body string) string {
	folded := strings.ToUpper(Fold(body))

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var channelPrefixes = []struct {
	prefix  string
	channel string
}{
	{"whatsapp:", "whatsapp"},
	{"sms:", "sms"},
}

var contactSeparators = strings.NewReplacer(" ", "", "\t", "", "-", "", "(", "", ")", "", ".", "")

// CanonicalContact strips the channel prefix a provider adds to the sender
// address and reports which channel it was. Unprefixed contacts are whatsapp.
func CanonicalContact(raw string) (contact string, channel string) {
	contact = strings.TrimSpace(raw)
	channel = "whatsapp"
	lower := strings.ToLower(contact)
	for _, p := range channelPrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			contact = contact[len(p.prefix):]
			channel = p.channel
			break
		}
	}
	return contactSeparators.Replace(contact), channel
}

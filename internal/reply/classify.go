package reply

import "strings"

type Intent string

const (
	Confirm Intent = "CONFIRM"
	Reject  Intent = "REJECT"
	Unknown Intent = "UNKNOWN"
)

var (
	confirmTokens = []string{"SI", "YES"}
	rejectTokens  = []string{"NO"}
)

// Classify maps a normalized reply to an intent by substring match.
// Confirm tokens are checked before reject tokens, so a reply carrying both
// ("SI... NO") reads as a confirmation. Ambiguous input is biased toward yes.
func Classify(normalized string) Intent {
	if containsAny(normalized, confirmTokens) {
		return Confirm
	}
	if containsAny(normalized, rejectTokens) {
		return Reject
	}
	return Unknown
}

// Interpret is Normalize followed by Classify.
func Interpret(body string) Intent {
	return Classify(Normalize(body))
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

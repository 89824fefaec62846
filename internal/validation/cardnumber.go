// Package validation contains input format checks.
package validation

// Card numbers are short human-entered numeric strings printed on the
// physical cards.
const (
	minCardNumberLen = 3
	maxCardNumberLen = 12
)

// IsValidCardNumber reports whether s looks like a card number:
// digits only, within the printed length range.
func IsValidCardNumber(s string) bool {
	if len(s) < minCardNumberLen || len(s) > maxCardNumberLen {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package gateway

import (
	"regexp"
	"strings"
	"unicode"
)

var phonePattern = regexp.MustCompile(`^254[0-9]{9}$`)

// NormalizePhone reduces a Kenyan mobile number to 2547XXXXXXXX form.
// It accepts 07XXXXXXXX, +2547XXXXXXXX and 2547XXXXXXXX with any separators.
func NormalizePhone(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)

	switch {
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = "254" + digits[1:]
	case (strings.HasPrefix(digits, "7") || strings.HasPrefix(digits, "1")) && len(digits) == 9:
		digits = "254" + digits
	}

	if !phonePattern.MatchString(digits) {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

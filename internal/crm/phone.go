package crm

import "strings"

// NormalizePhone reduces a phone number to digits in the 7XXXXXXXXXX form
// the CRM indexes customers by. 11 digits with a leading 8 become 7..., 10
// digits with a leading 9 get a 7 prefix; anything else is left as digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 11 && digits[0] == '8':
		return "7" + digits[1:]
	case len(digits) == 10 && digits[0] == '9':
		return "7" + digits
	default:
		return digits
	}
}

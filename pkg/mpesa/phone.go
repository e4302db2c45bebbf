package mpesa

import "strings"

// NormalizePhone converts a Kenyan phone number into the 2547XXXXXXXX MSISDN
// form Daraja expects. Non-digits are stripped and a leading 0 becomes 254.
// Numbers already carrying the country code are returned unchanged.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		return "254" + digits[1:]
	}
	return digits
}

// ValidPhone reports whether a normalized number looks like a Kenyan MSISDN.
func ValidPhone(normalized string) bool {
	return len(normalized) == 12 && strings.HasPrefix(normalized, "254")
}

package customer

import "strings"

// FormatPhone normalises a phone number with at least ten digits to
// "+1 (208) 555-0100"; digits before the last ten become the country code.
// Shorter input is returned unchanged.
func FormatPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 10 {
		return phone
	}
	number := digits[len(digits)-10:]
	country := digits[:len(digits)-10]
	if country == "" {
		country = "1"
	}
	return "+" + country + " (" + number[:3] + ") " + number[3:6] + "-" + number[6:]
}

package mpesa

import (
	"regexp"
	"strings"
	"unicode"
)

// CountryPrefix is the Kenyan dialling code Daraja expects on every MSISDN
const CountryPrefix = "254"

var kenyanMSISDN = regexp.MustCompile(`^254[17]\d{8}$`)

// NormalizePhone converts local and international spellings to 2547XXXXXXXX.
//
//	"0712 345 678"  -> "254712345678"
//	"+254712345678" -> "254712345678"
//	"712345678"     -> "254712345678"
//
// It is idempotent and never fails; use ValidKenyanMSISDN to check the result.
func NormalizePhone(phone string) string {
	p := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, phone)

	switch {
	case strings.HasPrefix(p, "+"):
		p = strings.TrimPrefix(p, "+")
	case strings.HasPrefix(p, "0"):
		p = CountryPrefix + p[1:]
	}
	if !strings.HasPrefix(p, CountryPrefix) {
		p = CountryPrefix + p
	}
	return p
}

// ValidKenyanMSISDN reports whether a normalized number is a Safaricom-style mobile number
func ValidKenyanMSISDN(phone string) bool {
	return kenyanMSISDN.MatchString(phone)
}

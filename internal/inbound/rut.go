package inbound

import (
	"errors"
	"strings"
)

// ErrInvalidRUT is returned for a RUT with a malformed body or a wrong check digit.
var ErrInvalidRUT = errors.New("invalid rut")

// NormalizeRUT validates a Chilean RUT and returns it as "12345678-5".
// Dots and spaces are ignored, the dash is optional and the check digit K may be lowercase.
func NormalizeRUT(raw string) (string, error) {
	s := strings.ToUpper(strings.NewReplacer(".", "", " ", "", "-", "").Replace(raw))
	if len(s) < 2 {
		return "", ErrInvalidRUT
	}

	body, dv := s[:len(s)-1], s[len(s)-1]
	if len(body) > 8 {
		return "", ErrInvalidRUT
	}
	for _, r := range body {
		if r < '0' || r > '9' {
			return "", ErrInvalidRUT
		}
	}
	if strings.TrimLeft(body, "0") == "" {
		return "", ErrInvalidRUT
	}

	if checkDigit(body) != dv {
		return "", ErrInvalidRUT
	}
	return body + "-" + string(dv), nil
}

// checkDigit computes the modulo 11 verifier of body.
func checkDigit(body string) byte {
	sum, factor := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * factor
		factor++
		if factor > 7 {
			factor = 2
		}
	}
	switch r := 11 - sum%11; r {
	case 11:
		return '0'
	case 10:
		return 'K'
	default:
		return byte('0' + r)
	}
}

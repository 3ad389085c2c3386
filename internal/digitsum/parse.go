package digitsum

import "strings"

// integerPart validates input as a decimal literal and returns the digits of
// its integer part without sign or leading zeros.
//
// Accepted forms, after trimming surrounding whitespace:
//
//	[+-] digits [. digits] [e [+-] digits]
//	[+-] . digits [e [+-] digits]
//
// The integer part stops at the decimal point or exponent marker, so "12.9"
// yields "12" and "1e3" yields "1". An empty integer part (".5") is "0".
func integerPart(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}

	n := leadingDigits(s)
	intPart, rest := s[:n], s[n:]

	fracLen := 0
	if rest != "" && rest[0] == '.' {
		rest = rest[1:]
		fracLen = leadingDigits(rest)
		rest = rest[fracLen:]
	}
	if intPart == "" && fracLen == 0 {
		return "", false
	}

	if rest != "" {
		if rest[0] != 'e' && rest[0] != 'E' {
			return "", false
		}
		rest = rest[1:]
		if rest != "" && (rest[0] == '+' || rest[0] == '-') {
			rest = rest[1:]
		}
		if rest == "" || leadingDigits(rest) != len(rest) {
			return "", false
		}
	}

	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	return intPart, true
}

func leadingDigits(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}

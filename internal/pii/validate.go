package pii

import (
	"math/big"
	"strconv"
	"strings"
)

// scoreIBAN checks the ISO 13616 mod-97 checksum.
func scoreIBAN(match string) float64 {
	s := strings.ReplaceAll(match, " ", "")
	if len(s) < 15 || len(s) > 34 {
		return 0
	}
	rearranged := s[4:] + s[:4]

	var b strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteString(strconv.Itoa(int(r-'A') + 10))
		default:
			return 0
		}
	}

	n, ok := new(big.Int).SetString(b.String(), 10)
	if !ok {
		return 0
	}
	if new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1 {
		return 0.95
	}
	return 0.5
}

// scoreCard applies the Luhn check to 13-19 digit sequences.
func scoreCard(match string) float64 {
	d := digitsOnly(match)
	if len(d) < 13 || len(d) > 19 {
		return 0
	}
	sum := 0
	double := false
	for i := len(d) - 1; i >= 0; i-- {
		n := int(d[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	if sum%10 == 0 {
		return 0.95
	}
	return 0.4
}

// scoreBSN applies the Dutch "elfproef": weights 9..2 on the first
// eight digits, minus the last digit, must be divisible by 11.
func scoreBSN(match string) float64 {
	if len(match) != 9 {
		return 0
	}
	sum := 0
	for i := range 8 {
		sum += int(match[i]-'0') * (9 - i)
	}
	sum -= int(match[8] - '0')
	if sum != 0 && sum%11 == 0 {
		return 0.85
	}
	return 0.3
}

func scoreIPv4(match string) float64 {
	for _, part := range strings.Split(match, ".") {
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 {
			return 0
		}
	}
	return 0.7
}

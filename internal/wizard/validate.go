package wizard

import (
	"fmt"
	"strings"
	"time"

	"github.com/acentrix/quotefunnel/internal/core"
)

// ClassifyIdentity decides the funnel path from the identity number: a
// 10-digit tax number routes to the corporate path, an 11-digit national id
// to the individual path, anything else is a validation error.
func ClassifyIdentity(identityNumber string) (core.CustomerType, error) {
	n := strings.TrimSpace(identityNumber)
	switch len(n) {
	case 10:
		if !allDigits(n) {
			return "", fmt.Errorf("%w: tax number must be 10 digits", core.ErrValidation)
		}
		return core.CustomerCorporate, nil
	case 11:
		if err := validateNationalID(n); err != nil {
			return "", err
		}
		return core.CustomerIndividual, nil
	default:
		return "", fmt.Errorf("%w: identity number must be 10 or 11 digits", core.ErrValidation)
	}
}

// validateNationalID applies the TCKN checksum: digit 10 is derived from the
// first nine, digit 11 from the first ten, and the number cannot start with
// zero.
func validateNationalID(n string) error {
	if !allDigits(n) || n[0] == '0' {
		return fmt.Errorf("%w: invalid national id", core.ErrValidation)
	}

	var d [11]int
	for i := range n {
		d[i] = int(n[i] - '0')
	}

	odd := d[0] + d[2] + d[4] + d[6] + d[8]
	even := d[1] + d[3] + d[5] + d[7]
	if ((odd*7-even)%10+10)%10 != d[9] {
		return fmt.Errorf("%w: invalid national id", core.ErrValidation)
	}

	sum := 0
	for i := 0; i < 10; i++ {
		sum += d[i]
	}
	if sum%10 != d[10] {
		return fmt.Errorf("%w: invalid national id", core.ErrValidation)
	}
	return nil
}

// NormalizePhone accepts Turkish mobile numbers in the common spellings
// (5XXXXXXXXX, 05XXXXXXXXX, +905XXXXXXXXX, 905XXXXXXXXX) and returns the
// bare ten-digit form.
func NormalizePhone(phone string) (string, error) {
	p := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	switch {
	case len(p) == 12 && strings.HasPrefix(p, "90"):
		p = p[2:]
	case len(p) == 11 && strings.HasPrefix(p, "0"):
		p = p[1:]
	}

	if len(p) != 10 || p[0] != '5' {
		return "", fmt.Errorf("%w: invalid mobile phone number", core.ErrValidation)
	}
	return p, nil
}

// ValidateEmail is intentionally loose; the profile store is the authority.
func ValidateEmail(email string) error {
	if email == "" {
		return nil
	}
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 || !strings.Contains(email[at:], ".") {
		return fmt.Errorf("%w: invalid email address", core.ErrValidation)
	}
	return nil
}

const birthDateLayout = "2006-01-02"

// ValidateBirthDate checks format and a sane insurable age range.
func ValidateBirthDate(birthDate string, now time.Time) error {
	t, err := time.Parse(birthDateLayout, birthDate)
	if err != nil {
		return fmt.Errorf("%w: birth date must be YYYY-MM-DD", core.ErrValidation)
	}
	age := now.Year() - t.Year()
	if age < 0 || age > 120 {
		return fmt.Errorf("%w: invalid birth date", core.ErrValidation)
	}
	return nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

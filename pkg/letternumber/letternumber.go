package letternumber

import (
	"errors"
	"fmt"
	"time"
)

// MaxSequence is the highest sequence value the three-digit letter number
// format can carry within one letter type and year.
const MaxSequence = 999

var ErrSequenceExhausted = errors.New("letter number sequence exhausted for this period")

var romanMonths = [13]string{
	"", "I", "II", "III", "IV", "V", "VI",
	"VII", "VIII", "IX", "X", "XI", "XII",
}

// RomanMonth returns the roman numeral used in Indonesian administrative
// letter numbers for the given month (1..12).
func RomanMonth(month time.Month) string {
	if month < time.January || month > time.December {
		return ""
	}
	return romanMonths[int(month)]
}

// Format renders a letter number such as "SKA/007/VIII/2026".
// seq must be in [1, MaxSequence].
func Format(prefix string, seq int, issuedAt time.Time) (string, error) {
	if prefix == "" {
		return "", errors.New("letter number prefix is empty")
	}
	if seq < 1 || seq > MaxSequence {
		return "", ErrSequenceExhausted
	}
	issuedAt = issuedAt.UTC()
	return fmt.Sprintf("%s/%03d/%s/%d", prefix, seq, RomanMonth(issuedAt.Month()), issuedAt.Year()), nil
}

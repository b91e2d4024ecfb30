package dnc

import (
	"errors"
	"strings"
	"time"
)

// Entry is one do-not-call registration.
type Entry struct {
	Phone   string    `json:"phone" db:"phone"`
	Reason  string    `json:"reason" db:"reason"`
	AddedAt time.Time `json:"added_at" db:"added_at"`
}

var (
	ErrNotFound     = errors.New("dnc: not listed")
	ErrInvalidPhone = errors.New("dnc: invalid phone")
)

// Normalize trims a phone number to digits with an optional leading '+'.
// Formatting characters (spaces, dashes, dots, parentheses) are dropped.
func Normalize(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	b.Grow(len(phone))
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}
	out := b.String()
	if strings.TrimPrefix(out, "+") == "" {
		return "", ErrInvalidPhone
	}
	return out, nil
}

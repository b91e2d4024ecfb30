package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Operator is a console user allowed to log in.
type Operator struct {
	Username     string
	PasswordHash string
	Role         string
}

// Operators is the static credential set loaded from configuration.
type Operators struct {
	byName map[string]Operator
}

// ParseOperators reads comma separated user:bcrypt-hash:role entries.
// roleOK rejects unknown roles when non-nil.
func ParseOperators(list string, roleOK func(string) bool) (*Operators, error) {
	ops := &Operators{byName: map[string]Operator{}}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("operator entry %q must be user:hash:role", redact(entry))
		}
		if roleOK != nil && !roleOK(parts[2]) {
			return nil, fmt.Errorf("operator %q has unknown role %q", parts[0], parts[2])
		}
		if _, dup := ops.byName[parts[0]]; dup {
			return nil, fmt.Errorf("operator %q listed twice", parts[0])
		}
		ops.byName[parts[0]] = Operator{Username: parts[0], PasswordHash: parts[1], Role: parts[2]}
	}
	return ops, nil
}

func redact(entry string) string {
	if i := strings.Index(entry, ":"); i >= 0 {
		return entry[:i] + ":***"
	}
	return entry
}

func (o *Operators) Len() int {
	if o == nil {
		return 0
	}
	return len(o.byName)
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (o *Operators) Authenticate(username, password string) (Operator, error) {
	if o == nil {
		return Operator{}, ErrInvalidCredentials
	}
	op, ok := o.byName[username]
	if !ok {
		return Operator{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return Operator{}, ErrInvalidCredentials
	}
	return op, nil
}

// HashPassword produces a hash suitable for an OPERATORS entry.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

package service

import (
	"fmt"
	netmail "net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxNameRunes = 100

// PasswordPolicy bounds acceptable password lengths. MaxLength is in bytes
// because bcrypt ignores everything past 72 bytes.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// DefaultPasswordPolicy matches the default configuration.
var DefaultPasswordPolicy = PasswordPolicy{MinLength: 8, MaxLength: 72}

// ValidEmail reports whether s is a bare address with a dotted domain.
func ValidEmail(s string) bool {
	if s == "" || len(s) > 254 {
		return false
	}
	addr, err := netmail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return at > 0 && strings.Contains(domain, ".") && !strings.HasSuffix(domain, ".")
}

// SanitizeName trims s, drops control characters and caps it at 100 runes.
func SanitizeName(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxNameRunes {
		s = strings.TrimSpace(string([]rune(s)[:maxNameRunes]))
	}
	return s
}

func (p PasswordPolicy) check(ve *ValidationError, password, confirm string) {
	switch {
	case password == "":
		ve.add("password", "Password cannot be blank")
	case utf8.RuneCountInString(password) < p.MinLength:
		ve.add("password", fmt.Sprintf("Password must be at least %d characters long", p.MinLength))
	case len(password) > p.MaxLength:
		ve.add("password", fmt.Sprintf("Password must be at most %d bytes long", p.MaxLength))
	}
	if password != confirm {
		ve.add("confirmPassword", "Passwords do not match")
	}
}

func checkEmail(ve *ValidationError, email string) {
	if !ValidEmail(email) {
		ve.add("email", "Email is not valid")
	}
}

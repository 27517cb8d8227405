package service

import (
	"strings"
	"testing"
)

func TestValidEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"a@b.com", true},
		{"first.last+tag@sub.example.org", true},
		{"", false},
		{"plain", false},
		{"a@b", false},
		{"a@b.", false},
		{"@b.com", false},
		{"Ada <a@b.com>", false},
		{"a b@c.com", false},
		{strings.Repeat("a", 250) + "@b.com", false},
	}

	for _, tt := range tests {
		if got := ValidEmail(tt.in); got != tt.want {
			t.Errorf("ValidEmail(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	if got := SanitizeName("  Ada\tLovelace\x7f "); got != "AdaLovelace" {
		t.Errorf("SanitizeName() = %q", got)
	}

	long := strings.Repeat("é", 150)
	if got := SanitizeName(long); len([]rune(got)) != 100 {
		t.Errorf("SanitizeName() kept %d runes, want 100", len([]rune(got)))
	}
}

func TestPasswordPolicy(t *testing.T) {
	p := PasswordPolicy{MinLength: 8, MaxLength: 72}

	ve := &ValidationError{}
	p.check(ve, "longenough1", "longenough1")
	if ve.err() != nil {
		t.Fatalf("check() unexpected error: %v", ve)
	}

	// Multi-byte runes count as characters for the minimum.
	ve = &ValidationError{}
	p.check(ve, "ééééééé", "ééééééé")
	if ve.err() == nil {
		t.Fatal("check() accepted a 7 character password")
	}

	ve = &ValidationError{}
	p.check(ve, strings.Repeat("a", 72), strings.Repeat("a", 72))
	if ve.err() != nil {
		t.Fatalf("check() rejected a 72 byte password: %v", ve)
	}
}

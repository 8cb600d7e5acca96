package auth

import (
	"strings"
	"testing"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=16384,t=2,p=2$") {
		t.Errorf("HashPassword() = %q, unexpected format", hash)
	}
	if !VerifyHash("s3cret", hash) {
		t.Error("VerifyHash() = false for correct password")
	}
	if VerifyHash("wrong", hash) {
		t.Error("VerifyHash() = true for wrong password")
	}
}

func TestVerifyHash_Malformed(t *testing.T) {
	tests := []string{
		"",
		"plain",
		"$argon2i$v=19$m=16384,t=2,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=16384,t=2,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=2,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=16384,t=2,p=2$!!$aGFzaA",
	}
	for _, h := range tests {
		if VerifyHash("x", h) {
			t.Errorf("VerifyHash(%q) = true, want false", h)
		}
	}
}

func TestVerifier_Check(t *testing.T) {
	v, err := NewVerifier("adminpw", "userpw")
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}

	tests := []struct {
		password string
		want     Outcome
	}{
		{"adminpw", AdminGranted},
		{"userpw", RestrictedGranted},
		{"nope", Denied},
		{"", Denied},
	}
	for _, tt := range tests {
		if got := v.Check(tt.password); got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.password, got, tt.want)
		}
	}
}

func TestVerifier_AdminWinsWhenBothMatch(t *testing.T) {
	v, err := NewVerifier("same", "same")
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	if got := v.Check("same"); got != AdminGranted {
		t.Errorf("Check() = %v, want %v", got, AdminGranted)
	}
}

func TestVerifier_AcceptsPrehashed(t *testing.T) {
	hash, err := HashPassword("userpw")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	v, err := NewVerifier("", hash)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	if got := v.Check("userpw"); got != RestrictedGranted {
		t.Errorf("Check() = %v, want %v", got, RestrictedGranted)
	}
	if _, err := NewVerifier("$argon2id$broken", ""); err == nil {
		t.Error("NewVerifier() with malformed hash error = nil")
	}
}

func TestVerifier_InitialState(t *testing.T) {
	tests := []struct {
		admin, user string
		want        State
	}{
		{"", "", AdminAuthed},
		{"", "u", RestrictedAuthed},
		{"a", "", Unauthenticated},
		{"a", "u", Unauthenticated},
	}
	for _, tt := range tests {
		v, err := NewVerifier(tt.admin, tt.user)
		if err != nil {
			t.Fatalf("NewVerifier() error = %v", err)
		}
		if got := v.InitialState(); got != tt.want {
			t.Errorf("InitialState(%q, %q) = %v, want %v", tt.admin, tt.user, got, tt.want)
		}
	}

	var nilV *Verifier
	if nilV.Configured() || nilV.Check("x") != Denied {
		t.Error("nil Verifier must be unconfigured and deny")
	}
}

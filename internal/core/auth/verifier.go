package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters, encoded into every hash.
const (
	argonTime    = 2
	argonMemory  = 16 * 1024
	argonThreads = 2
	argonKeyLen  = 32
	argonSaltLen = 16
)

// Verifier checks AUTH passwords against the admin (requirepass) and
// restricted (userpass) secrets. Secrets are held only as argon2id hashes.
// A Verifier is immutable; build a new one per configuration snapshot.
type Verifier struct {
	admin      string
	restricted string
}

// NewVerifier hashes the configured passwords. A value that already is an
// argon2id hash (as produced by HashPassword) is kept as is; an empty value
// means the tier is not configured.
func NewVerifier(adminPassword, restrictedPassword string) (*Verifier, error) {
	admin, err := normalize(adminPassword)
	if err != nil {
		return nil, fmt.Errorf("requirepass: %w", err)
	}
	restricted, err := normalize(restrictedPassword)
	if err != nil {
		return nil, fmt.Errorf("userpass: %w", err)
	}
	return &Verifier{admin: admin, restricted: restricted}, nil
}

func normalize(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	if IsHash(password) {
		if _, _, err := parseHash(password); err != nil {
			return "", err
		}
		return password, nil
	}
	return HashPassword(password)
}

func (v *Verifier) AdminConfigured() bool      { return v != nil && v.admin != "" }
func (v *Verifier) RestrictedConfigured() bool { return v != nil && v.restricted != "" }

// Configured reports whether any password is set.
func (v *Verifier) Configured() bool {
	return v.AdminConfigured() || v.RestrictedConfigured()
}

// InitialState returns the state new connections start in.
func (v *Verifier) InitialState() State {
	return Init(v.AdminConfigured(), v.RestrictedConfigured())
}

// Check returns the tier granted by password. The admin password wins when
// both match.
func (v *Verifier) Check(password string) Outcome {
	if v == nil {
		return Denied
	}
	if v.admin != "" && VerifyHash(password, v.admin) {
		return AdminGranted
	}
	if v.restricted != "" && VerifyHash(password, v.restricted) {
		return RestrictedGranted
	}
	return Denied
}

// HashPassword returns an argon2id hash in the form
// $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// IsHash reports whether s looks like an encoded argon2id hash.
func IsHash(s string) bool {
	return strings.HasPrefix(s, "$argon2id$")
}

// VerifyHash checks password against an encoded argon2id hash in constant time.
func VerifyHash(password, encoded string) bool {
	p, salt, err := parseHash(encoded)
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(p.hash)
	if err != nil || len(expected) == 0 {
		return false
	}
	computed := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

type hashParams struct {
	memory  uint32
	time    uint32
	threads uint8
	hash    string
}

func parseHash(encoded string) (hashParams, []byte, error) {
	var p hashParams
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, fmt.Errorf("invalid argon2id hash")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, fmt.Errorf("unsupported argon2 version %q", parts[2])
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, fmt.Errorf("invalid argon2 parameters %q", parts[3])
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return p, nil, fmt.Errorf("invalid argon2 parameters %q", parts[3])
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, fmt.Errorf("invalid salt: %w", err)
	}
	p.hash = parts[5]
	return p, salt, nil
}

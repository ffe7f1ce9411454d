package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	AlgorithmPBKDF2SHA256 = "pbkdf2-sha256"

	DefaultIterations = 100000 // ~100ms per verify on commodity hardware
	MinIterations     = 1000
	MaxIterations     = 10000000
	SaltLength        = 32
	KeyLength         = 32
	MinPasswordLen    = 8
	MaxPasswordLen    = 128

	// legacyIterations is the fixed count used by the colon-delimited salt:hash format
	legacyIterations = 100000
)

// ErrMalformedHash is returned by ParseCredential for encodings it cannot read
var ErrMalformedHash = errors.New("malformed password hash")

// Credential is a salted PBKDF2 derived key together with the parameters used to derive it.
//
// Encoded form: pbkdf2-sha256$<iterations>$<salt hex>$<hash hex>
type Credential struct {
	Algorithm  string
	Iterations int
	Salt       []byte
	Hash       []byte
}

// String returns the versioned on-disk encoding of the credential
func (c *Credential) String() string {
	return fmt.Sprintf("%s$%d$%s$%s",
		c.Algorithm, c.Iterations, hex.EncodeToString(c.Salt), hex.EncodeToString(c.Hash))
}

// ParseCredential decodes a stored credential. Besides the versioned format it
// accepts the legacy "salt:hash" encoding, read as PBKDF2-SHA256 with 100000 iterations.
func ParseCredential(encoded string) (*Credential, error) {
	if salt, key, ok := strings.Cut(encoded, ":"); ok && !strings.Contains(encoded, "$") {
		return decodeCredential(AlgorithmPBKDF2SHA256, legacyIterations, salt, key)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != AlgorithmPBKDF2SHA256 {
		return nil, ErrMalformedHash
	}

	iterations, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, ErrMalformedHash
	}

	return decodeCredential(parts[0], iterations, parts[2], parts[3])
}

func decodeCredential(algorithm string, iterations int, saltHex, hashHex string) (*Credential, error) {
	if iterations < MinIterations || iterations > MaxIterations {
		return nil, ErrMalformedHash
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return nil, ErrMalformedHash
	}

	hash, err := hex.DecodeString(hashHex)
	if err != nil || len(hash) == 0 {
		return nil, ErrMalformedHash
	}

	return &Credential{Algorithm: algorithm, Iterations: iterations, Salt: salt, Hash: hash}, nil
}

// Hasher derives and verifies password credentials.
// It holds no mutable state and is safe for concurrent use.
type Hasher struct {
	Iterations int
}

// NewHasher returns a Hasher using iterations for new credentials.
// Values below MinIterations are raised to MinIterations.
func NewHasher(iterations int) *Hasher {
	if iterations < MinIterations {
		iterations = MinIterations
	}
	return &Hasher{Iterations: iterations}
}

// DefaultHasher uses the documented 100000 iteration policy
var DefaultHasher = NewHasher(DefaultIterations)

// Hash derives a new credential from plaintext with a fresh random salt
func (h *Hasher) Hash(plaintext string) (*Credential, error) {
	if plaintext == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}

	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &Credential{
		Algorithm:  AlgorithmPBKDF2SHA256,
		Iterations: h.Iterations,
		Salt:       salt,
		Hash:       derive(plaintext, salt, h.Iterations),
	}, nil
}

// HashPassword returns the encoded credential for plaintext
func (h *Hasher) HashPassword(plaintext string) (string, error) {
	cred, err := h.Hash(plaintext)
	if err != nil {
		return "", err
	}
	return cred.String(), nil
}

// Verify reports whether plaintext matches the stored credential.
// Malformed encodings never match.
func (h *Hasher) Verify(plaintext, encoded string) bool {
	if isBcrypt(encoded) {
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext)) == nil
	}

	cred, err := ParseCredential(encoded)
	if err != nil {
		return false
	}

	candidate := derive(plaintext, cred.Salt, cred.Iterations)
	return subtle.ConstantTimeCompare(candidate, cred.Hash) == 1
}

// NeedsRehash reports whether a stored credential should be replaced after a
// successful verification: legacy encodings, bcrypt hashes, or fewer
// iterations than the current policy.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) || !strings.HasPrefix(encoded, AlgorithmPBKDF2SHA256+"$") {
		return true
	}

	cred, err := ParseCredential(encoded)
	if err != nil {
		return true
	}
	return cred.Iterations < h.Iterations
}

// HashPassword hashes with the default policy
func HashPassword(password string) (string, error) {
	return DefaultHasher.HashPassword(password)
}

// ComparePassword verifies with the default policy
func ComparePassword(encoded, password string) bool {
	return DefaultHasher.Verify(password, encoded)
}

func derive(plaintext string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(plaintext), salt, iterations, KeyLength, sha256.New)
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// PasswordValidationError holds validation error details (internal use only)
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return "password " + e.Errors[0]
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password":    true,
	"password1":   true,
	"password123": true,
	"12345678":    true,
	"123456789":   true,
	"qwerty123":   true,
	"letmein1":    true,
	"welcome1":    true,
	"passw0rd":    true,
	"trustno1":    true,
	"garage123":   true,
	"mechanic1":   true,
	"changeme1":   true,
	"admin123":    true,
}

// ValidatePassword enforces the password policy: 8 to 128 characters with at
// least one uppercase letter, one lowercase letter and one digit.
func ValidatePassword(password string) error {
	errs := make([]string, 0)

	length := utf8.RuneCountInString(password)
	if length < MinPasswordLen {
		errs = append(errs, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if length > MaxPasswordLen {
		errs = append(errs, fmt.Sprintf("must be at most %d characters", MaxPasswordLen))
	}

	hasUpper := false
	hasLower := false
	hasDigit := false

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper {
		errs = append(errs, "must contain at least one uppercase letter")
	}
	if !hasLower {
		errs = append(errs, "must contain at least one lowercase letter")
	}
	if !hasDigit {
		errs = append(errs, "must contain at least one digit")
	}

	if commonPasswords[strings.ToLower(password)] {
		errs = append(errs, "is too common")
	}

	if len(errs) > 0 {
		return &PasswordValidationError{Errors: errs}
	}

	return nil
}

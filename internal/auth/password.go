package auth

import "golang.org/x/crypto/bcrypt"

// bcryptCost fixes the work factor so login latency stays reproducible
// across deployments.
const bcryptCost = 10

// PasswordHasher wraps bcrypt hashing and verification.
type PasswordHasher struct{}

// NewPasswordHasher constructs a hasher with the fixed cost factor.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{}
}

// Hash produces a salted one-way hash of the plaintext password.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches the stored hash. Comparison goes
// through bcrypt's own primitive, never raw string equality.
func (h *PasswordHasher) Verify(plaintext, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}

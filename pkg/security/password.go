package security

import "golang.org/x/crypto/bcrypt"

// PasswordVerifier checks a plaintext password against a stored hash.
// The admin password ships as a bcrypt hash in config, so this service
// only ever verifies; it never hashes.
type PasswordVerifier interface {
	Compare(hashedPassword, password string) error
}

type bcryptVerifier struct{}

func NewBcryptVerifier() PasswordVerifier {
	return bcryptVerifier{}
}

func (bcryptVerifier) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

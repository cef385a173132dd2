package util

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const passwordCost = 10

// ErrPasswordTooLong bcrypt only looks at the first 72 bytes.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// HashPassword turns a plaintext password into a bcrypt hash.
func HashPassword(password string) (string, error) {
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPassword verifies a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher turns secrets into stored digests and checks them.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) (bool, error)
	// NeedsUpgrade reports whether digest should be re-hashed with the
	// current scheme after a successful Verify.
	NeedsUpgrade(digest string) bool
}

// Hasher kinds accepted by NewPasswordHasher.
const (
	HasherSHA256 = "sha256"
	HasherBcrypt = "bcrypt"
)

// NewPasswordHasher returns the hasher registered under kind.
func NewPasswordHasher(kind string) (PasswordHasher, error) {
	switch strings.ToLower(kind) {
	case "", HasherSHA256:
		return SHA256Hasher{}, nil
	case HasherBcrypt:
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	default:
		return nil, oops.Code("UNKNOWN_HASHER").With("kind", kind).Errorf("unknown password hasher %q", kind)
	}
}

// SHA256Hasher produces unsalted lowercase hex SHA-256 digests. It exists to
// keep digests written by earlier deployments valid.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptyPassword
	}
	return sha256Hex(secret), nil
}

func (SHA256Hasher) Verify(secret, digest string) (bool, error) {
	if secret == "" {
		return false, ErrEmptyPassword
	}
	return subtle.ConstantTimeCompare([]byte(sha256Hex(secret)), []byte(digest)) == 1, nil
}

func (SHA256Hasher) NeedsUpgrade(string) bool { return false }

// BcryptHasher writes salted bcrypt digests and still accepts legacy SHA-256
// digests, flagging them for upgrade.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptyPassword
	}
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

func (h BcryptHasher) Verify(secret, digest string) (bool, error) {
	if secret == "" {
		return false, ErrEmptyPassword
	}
	if isLegacyDigest(digest) {
		return SHA256Hasher{}.Verify(secret, digest)
	}
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("failed to verify password: %w", err)
	}
}

func (h BcryptHasher) NeedsUpgrade(digest string) bool {
	return isLegacyDigest(digest)
}

func sha256Hex(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func isLegacyDigest(digest string) bool {
	if len(digest) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}

package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/isdelr/turbinix-be/internal/models"
	"github.com/isdelr/turbinix-be/internal/store"
)

const (
	// CodeLength is the number of decimal digits in a verification code.
	CodeLength = 6
	// CodeTTL is how long an issued code stays valid.
	CodeTTL = 600 * time.Second
	// ResendCooldown is the minimum gap between two codes for one address.
	ResendCooldown = 60 * time.Second
)

// VerifyResult is the outcome of checking a code.
type VerifyResult int

const (
	VerifyNotFound VerifyResult = iota
	VerifyValid
	VerifyExpired
)

func (r VerifyResult) String() string {
	switch r {
	case VerifyValid:
		return "valid"
	case VerifyExpired:
		return "expired"
	default:
		return "not_found"
	}
}

// CodeRegistry issues, checks and consumes verification codes. Every
// operation runs under one mutex, so for a given address issue, verify and
// consume never interleave. Expired codes are only purged when a check
// notices them.
type CodeRegistry struct {
	codes store.CodeRepository
	now   func() time.Time

	mu sync.Mutex
}

// NewCodeRegistry creates a registry on top of codes.
func NewCodeRegistry(codes store.CodeRepository) *CodeRegistry {
	return &CodeRegistry{codes: codes, now: time.Now}
}

// Issue generates and stores a fresh code for address, replacing any prior
// one. It fails with ErrThrottled while the previous code is younger than
// ResendCooldown; the error carries retry_after_seconds.
func (r *CodeRegistry) Issue(ctx context.Context, address string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	prev, err := r.codes.Get(ctx, address)
	switch {
	case err == nil:
		if age := prev.Age(now); age < ResendCooldown {
			return "", oops.
				Code("CODE_THROTTLED").
				With("address", address).
				With("retry_after_seconds", retryAfterSeconds(ResendCooldown-age)).
				Wrap(ErrThrottled)
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return "", oops.Code("CODE_LOOKUP_FAILED").With("address", address).Wrap(err)
	}

	code, err := GenerateCode(CodeLength)
	if err != nil {
		return "", oops.Code("CODE_GENERATE_FAILED").Wrap(err)
	}
	rec := models.VerificationCode{Address: address, Code: code, IssuedAt: now}
	if err := r.codes.Put(ctx, rec); err != nil {
		return "", oops.Code("CODE_STORE_FAILED").With("address", address).Wrap(err)
	}
	return code, nil
}

// Verify checks code for address without consuming it. An expired match is
// deleted and reported as VerifyExpired.
func (r *CodeRegistry) Verify(ctx context.Context, address, code string) (VerifyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.check(ctx, address, code)
}

// Consume checks code for address and deletes it when valid.
func (r *CodeRegistry) Consume(ctx context.Context, address, code string) error {
	return r.ConsumeWith(ctx, address, code, nil)
}

// ConsumeWith is Consume, except that fn runs while the code is held and the
// code is deleted only if fn returns nil. Concurrent callers presenting the
// same code cannot both succeed.
func (r *CodeRegistry) ConsumeWith(ctx context.Context, address, code string, fn func(context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.check(ctx, address, code)
	if err != nil {
		return err
	}
	switch res {
	case VerifyExpired:
		return oops.Code("CODE_EXPIRED").With("address", address).Wrap(ErrCodeExpired)
	case VerifyNotFound:
		return oops.Code("CODE_NOT_FOUND").With("address", address).Wrap(ErrCodeNotFound)
	}

	if fn != nil {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	if err := r.codes.Delete(ctx, address); err != nil {
		return oops.Code("CODE_STORE_FAILED").With("address", address).Wrap(err)
	}
	return nil
}

// check must be called with r.mu held.
func (r *CodeRegistry) check(ctx context.Context, address, code string) (VerifyResult, error) {
	rec, err := r.codes.Get(ctx, address)
	if errors.Is(err, store.ErrNotFound) {
		return VerifyNotFound, nil
	}
	if err != nil {
		return VerifyNotFound, oops.Code("CODE_LOOKUP_FAILED").With("address", address).Wrap(err)
	}
	if rec.Code != code {
		return VerifyNotFound, nil
	}

	if rec.Age(r.now()) > CodeTTL {
		if err := r.codes.Delete(ctx, address); err != nil {
			return VerifyExpired, oops.Code("CODE_STORE_FAILED").With("address", address).Wrap(err)
		}
		return VerifyExpired, nil
	}
	return VerifyValid, nil
}

// GenerateCode returns n uniformly random decimal digits.
func GenerateCode(n int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v.Int64()), nil
}

func retryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

package bin

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	// CodeLength is the length of a public bin code.
	CodeLength = 8

	// DefaultMaxAttempts bounds how many candidates Allocate tries.
	DefaultMaxAttempts = 5
)

// CodeProber reports whether a public code is already taken.
type CodeProber interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// Allocator generates collision-free public codes for new bins.
//
// Candidates are 6 bytes of crypto/rand encoded as 8 base64url characters
// (48 bits of entropy). Each candidate is probed against storage; a collision
// triggers a new candidate, up to MaxAttempts in total.
type Allocator struct {
	prober      CodeProber
	rand        io.Reader
	maxAttempts int
}

// AllocatorOption configures an Allocator.
type AllocatorOption func(*Allocator)

// WithRandSource replaces crypto/rand as the entropy source.
func WithRandSource(r io.Reader) AllocatorOption {
	return func(a *Allocator) { a.rand = r }
}

// WithMaxAttempts sets the number of candidates tried before giving up.
func WithMaxAttempts(n int) AllocatorOption {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// NewAllocator creates an Allocator probing codes through prober.
func NewAllocator(prober CodeProber, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		prober:      prober,
		rand:        rand.Reader,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns an unused public code. It fails with an error of kind
// KindAllocationExhausted when every attempt collided, and returns probe
// errors unchanged.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		code, err := a.candidate()
		if err != nil {
			return "", &Error{Kind: KindInternal, Message: "failed to generate public code", Err: err}
		}

		exists, err := a.prober.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}

	return "", &Error{
		Kind:    KindAllocationExhausted,
		Message: fmt.Sprintf("could not allocate a unique public code after %d attempts", a.maxAttempts),
	}
}

func (a *Allocator) candidate() (string, error) {
	buf := make([]byte, CodeLength*6/8)
	if _, err := io.ReadFull(a.rand, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

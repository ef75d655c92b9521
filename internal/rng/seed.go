package rng

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/attaboy/tower/internal/guard"
)

const randomOrgCircuit = "random_org"

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// SeedSource resolves the process seed: an explicit seed wins, then RANDOM.ORG
// behind the circuit breaker, then crypto/rand.
type SeedSource struct {
	Explicit  uint64
	RandomOrg *RandomOrgClient
	Breaker   *guard.CircuitBreaker
	Logger    *slog.Logger
}

// Resolve returns the seed and where it came from.
func (s SeedSource) Resolve(ctx context.Context) (uint64, string, error) {
	if s.Explicit != 0 {
		return s.Explicit, "config", nil
	}
	if s.RandomOrg != nil && s.RandomOrg.Enabled() {
		var seed uint64
		fetch := func(ctx context.Context) error {
			v, err := s.RandomOrg.Seed(ctx)
			seed = v
			return err
		}
		var err error
		if s.Breaker != nil {
			err = s.Breaker.Do(ctx, randomOrgCircuit, fetch)
		} else {
			err = fetch(ctx)
		}
		if err == nil {
			return seed, "random_org", nil
		}
		if s.Logger != nil {
			s.Logger.Warn("random.org unavailable, falling back to CSPRNG", "error", err)
		}
	}
	seed, err := NewSeed()
	if err != nil {
		return 0, "", err
	}
	return seed, "csprng", nil
}

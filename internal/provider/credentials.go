package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"resume-aggregator/internal/core"

	"go.uber.org/zap"
)

// rotationHorizon is the coarse "don't bother refreshing" window stamped on
// a slot after rotation. It models operator expectations, not the provider's
// real token lifetime.
const rotationHorizon = 14 * 24 * time.Hour

// TokenPair is the result of a refresh exchange.
type TokenPair struct {
	Access  string
	Refresh string
	TTL     time.Duration
}

// RefreshFunc exchanges the current refresh credential for a fresh bearer.
// Providers without a refresh credential (client-credentials flows) ignore
// the argument.
type RefreshFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

type slot struct {
	token     string
	expiresAt time.Time
	// minted marks a bearer obtained through the refresh flow; its expiry
	// reflects the provider's real token lifetime and must survive rotation.
	minted bool
}

// Credentials holds the equivalent bearer slots for one provider and
// serializes every mutation. Rotation is cyclic over the slots; refresh
// replaces the current slot's bearer in place.
type Credentials struct {
	mu sync.Mutex

	provider     core.Provider
	slots        []slot
	current      int
	refreshToken string
	refresh      RefreshFunc
	logger       *zap.Logger

	now func() time.Time
}

// NewCredentials builds a manager over the given equivalent bearer tokens.
// An empty token list is allowed for providers that mint their first bearer
// lazily via refresh; such a manager starts expired.
func NewCredentials(p core.Provider, tokens []string, refreshToken string, refresh RefreshFunc, logger *zap.Logger) *Credentials {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Credentials{
		provider:     p,
		refreshToken: refreshToken,
		refresh:      refresh,
		logger:       logger,
		now:          time.Now,
	}

	horizon := c.now().Add(rotationHorizon)
	for _, t := range tokens {
		c.slots = append(c.slots, slot{token: t, expiresAt: horizon})
	}
	if len(c.slots) == 0 {
		// lazily-minted single slot, expired from the start
		c.slots = []slot{{}}
	}

	return c
}

// Current returns the active bearer value.
func (c *Credentials) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[c.current].token
}

// Slots returns the number of configured equivalent slots.
func (c *Credentials) Slots() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// Expired reports whether the active slot is past its window.
func (c *Credentials) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slots[c.current]
	return s.token == "" || !c.now().Before(s.expiresAt)
}

// Rotate advances to the next equivalent slot, wrapping around, and resets
// a static slot's expiry to the far-future horizon. Rotating N times over N
// slots lands back on the original slot. A refresh-minted slot keeps its
// reported expiry so the bearer is re-minted once its real lifetime passes;
// a single minted slot rotates onto itself as a pure no-op.
func (c *Credentials) Rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = (c.current + 1) % len(c.slots)
	if !c.slots[c.current].minted {
		c.slots[c.current].expiresAt = c.now().Add(rotationHorizon)
	}
	c.logger.Info("rotated credential",
		zap.String("provider", string(c.provider)),
		zap.Int("slot", c.current),
	)
}

// Refresh exchanges the refresh credential for a new bearer and installs it
// into the current slot. A refresh failure is fatal to the calling operation
// and propagates untouched.
func (c *Credentials) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refresh == nil {
		return fmt.Errorf("%s: no refresh flow configured", c.provider)
	}

	pair, err := c.refresh(ctx, c.refreshToken)
	if err != nil {
		return fmt.Errorf("refreshing %s credential: %w", c.provider, err)
	}

	c.slots[c.current].token = pair.Access
	ttl := pair.TTL
	if ttl <= 0 {
		ttl = rotationHorizon
	}
	c.slots[c.current].expiresAt = c.now().Add(ttl)
	c.slots[c.current].minted = true
	if pair.Refresh != "" {
		c.refreshToken = pair.Refresh
	}

	c.logger.Info("refreshed credential",
		zap.String("provider", string(c.provider)),
		zap.Duration("ttl", ttl),
	)
	return nil
}

package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"collegefeedback/internal/cache"
	"collegefeedback/internal/observability"
	contextutils "collegefeedback/internal/utils"
)

const loginAttemptsPrefix = "login_attempts:"

// LoginTracker counts failed logins per email and locks the account out for
// a while once the limit is reached.
type LoginTracker struct {
	store       cache.Store
	maxAttempts int
	lockout     time.Duration
	logger      *observability.Logger
}

// NewLoginTracker creates a LoginTracker. maxAttempts <= 0 disables it.
func NewLoginTracker(store cache.Store, maxAttempts int, lockout time.Duration, logger *observability.Logger) *LoginTracker {
	return &LoginTracker{store: store, maxAttempts: maxAttempts, lockout: lockout, logger: logger}
}

func (t *LoginTracker) key(email string) string {
	return loginAttemptsPrefix + strings.ToLower(strings.TrimSpace(email))
}

func (t *LoginTracker) enabled() bool {
	return t != nil && t.store != nil && t.maxAttempts > 0
}

// Check returns ErrRateLimit while the email is locked out
func (t *LoginTracker) Check(ctx context.Context, email string) error {
	if !t.enabled() {
		return nil
	}
	ttl, err := t.store.TTL(ctx, t.key(email))
	if err != nil {
		t.logger.Warn(ctx, "Login attempt lookup failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if ttl <= 0 {
		return nil
	}
	raw, ok, err := t.store.Get(ctx, t.key(email))
	if err != nil || !ok {
		return nil
	}
	if n, _ := strconv.Atoi(raw); n >= t.maxAttempts {
		return contextutils.WrapErrorf(contextutils.ErrRateLimit, "too many failed logins; retry in %s", ttl.Round(time.Second))
	}
	return nil
}

// Failed records a failed login
func (t *LoginTracker) Failed(ctx context.Context, email string) {
	if !t.enabled() {
		return
	}
	n, err := t.store.Incr(ctx, t.key(email), t.lockout)
	if err != nil {
		t.logger.Warn(ctx, "Failed to record login attempt", map[string]interface{}{"error": err.Error()})
		return
	}
	if int(n) == t.maxAttempts {
		t.logger.Security(ctx, "Login locked out after repeated failures", map[string]interface{}{
			"email":    email,
			"attempts": n,
			"lockout":  t.lockout.String(),
		})
	}
}

// Succeeded clears the counter
func (t *LoginTracker) Succeeded(ctx context.Context, email string) {
	if !t.enabled() {
		return
	}
	if err := t.store.Delete(ctx, t.key(email)); err != nil {
		t.logger.Warn(ctx, "Failed to clear login attempts", map[string]interface{}{"error": err.Error()})
	}
}

package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/cache"
	"github.com/vocalingo/core/internal/pkg/metrics"
	pkgredis "github.com/vocalingo/core/internal/pkg/redis"
	"go.uber.org/zap"
)

// Resources guarded by the gate.
const (
	ResourceVocabulary = "vocabulary"
	ResourceFolders    = "folders"
	ResourceSubjects   = "subjects"
)

// Subject identifies who is creating something.
type Subject struct {
	UserID string
	Role   string
}

// Gate enforces daily creation counters and total-ownership caps.
type Gate struct {
	rc     *pkgredis.Client
	logger *zap.Logger
	bypass map[string]bool
	now    func() time.Time
}

// New creates a Gate. Users whose role is in bypassRoles are never limited.
func New(rc *pkgredis.Client, logger *zap.Logger, bypassRoles ...string) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{
		rc:     rc,
		logger: logger.Named("QuotaGate"),
		bypass: make(map[string]bool, len(bypassRoles)),
		now:    time.Now,
	}
	for _, r := range bypassRoles {
		g.bypass[r] = true
	}
	return g
}

// DailyKey is the counter for (resource, user, calendar day). It lives under
// the cache quota prefix so admin enumeration and purges reach it.
func DailyKey(resource, userID string, day time.Time) string {
	return cache.Key(cache.PrefixQuota, "daily", resource, userID, day.Format("2006-01-02"))
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// Exempt reports whether the subject skips quota checks.
func (g *Gate) Exempt(s Subject) bool {
	return g.bypass[s.Role]
}

// CheckDaily reserves one unit of today's allowance. When the reservation
// overshoots the limit it is rolled back and a QuotaError is returned, so the
// counter never stays above limit because of rejected attempts.
func (g *Gate) CheckDaily(ctx context.Context, s Subject, resource string, limit int64) error {
	if g.Exempt(s) || limit <= 0 {
		return nil
	}
	now := g.now()
	key := DailyKey(resource, s.UserID, now)

	n, err := g.rc.IncrExpireAt(ctx, key, endOfDay(now))
	if err != nil {
		return fmt.Errorf("quota counter: %w", err)
	}
	if n > limit {
		if _, err := g.rc.Decr(ctx, key); err != nil {
			g.logger.Warn("quota rollback failed", zap.String("key", key), zap.Error(err))
		}
		metrics.QuotaRejections.WithLabelValues(resource, "daily").Inc()
		return &apperr.QuotaError{Resource: resource, Limit: limit, Daily: true}
	}
	return nil
}

// Release returns one unit reserved by CheckDaily, used when the guarded
// creation fails after the reservation was taken.
func (g *Gate) Release(ctx context.Context, s Subject, resource string) {
	if g.Exempt(s) {
		return
	}
	key := DailyKey(resource, s.UserID, g.now())
	n, err := g.rc.Decr(ctx, key)
	if err != nil {
		g.logger.Warn("quota release failed", zap.String("key", key), zap.Error(err))
		return
	}
	if n < 0 {
		_ = g.rc.Del(ctx, key)
	}
}

// CheckCapacity rejects creation when the user already owns limit items.
// Two concurrent creations may both pass at count == limit-1; that overshoot
// by one is accepted.
func (g *Gate) CheckCapacity(ctx context.Context, s Subject, resource string, limit int64, count func(context.Context) (int64, error)) error {
	if g.Exempt(s) || limit <= 0 {
		return nil
	}
	n, err := count(ctx)
	if err != nil {
		return fmt.Errorf("quota count %s: %w", resource, err)
	}
	if n >= limit {
		metrics.QuotaRejections.WithLabelValues(resource, "capacity").Inc()
		return &apperr.QuotaError{Resource: resource, Limit: limit}
	}
	return nil
}

// Usage reads today's counter for a user.
func (g *Gate) Usage(ctx context.Context, userID, resource string) (int64, error) {
	raw, err := g.rc.Get(ctx, DailyKey(resource, userID, g.now()))
	if err != nil || raw == "" {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

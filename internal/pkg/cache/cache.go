package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/vocalingo/core/internal/pkg/metrics"
	pkgredis "github.com/vocalingo/core/internal/pkg/redis"
	"go.uber.org/zap"
)

// Key namespaces. Every prefix supports enumeration and bulk deletion.
const (
	Namespace = "vl"

	PrefixFolder     = "folder"
	PrefixSubject    = "subject"
	PrefixVocabulary = "vocab"
	PrefixTrainer    = "trainer"
	PrefixResult     = "trainer-result"
	PrefixMastery    = "mastery"
	PrefixQuota      = "quota"
)

// Prefixes lists every namespace prefix in a stable order.
var Prefixes = []string{PrefixFolder, PrefixSubject, PrefixVocabulary, PrefixTrainer, PrefixResult, PrefixMastery, PrefixQuota}

// TTL classes.
type TTLs struct {
	List      time.Duration
	Random    time.Duration
	Aggregate time.Duration
	Reference time.Duration
}

// DefaultTTLs returns the built-in TTL classes.
func DefaultTTLs() TTLs {
	return TTLs{
		List:      60 * time.Second,
		Random:    30 * time.Second,
		Aggregate: 5 * time.Minute,
		Reference: 0,
	}
}

// Cache is a JSON cache-aside layer over Redis.
// A nil *Cache is valid and always falls through to the loader.
type Cache struct {
	rc     *pkgredis.Client
	logger *zap.Logger
	ttl    TTLs
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTTLs overrides TTL classes.
func WithTTLs(ttl TTLs) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// New creates a Cache.
func New(rc *pkgredis.Client, opts ...Option) *Cache {
	c := &Cache{rc: rc, logger: zap.NewNop(), ttl: DefaultTTLs()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("Cache")
	return c
}

// TTL returns the configured TTL classes.
func (c *Cache) TTL() TTLs {
	if c == nil {
		return DefaultTTLs()
	}
	return c.ttl
}

// Key builds "vl:<prefix>:<part>:<part>".
func Key(prefix string, parts ...string) string {
	var b strings.Builder
	b.WriteString(Namespace)
	b.WriteByte(':')
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

// UserKey is the entity-by-user selector.
func UserKey(prefix, userID string, parts ...string) string {
	return Key(prefix, append([]string{"user", userID}, parts...)...)
}

// ListKey derives a list key from the acting user and a stable hash of the filter.
// encoding/json sorts map keys and keeps struct field order, so equal filters
// always hash the same.
func ListKey(prefix, userID string, filter interface{}) string {
	raw, err := json.Marshal(filter)
	if err != nil {
		raw = []byte("{}")
	}
	sum := sha256.Sum256(raw)
	return UserKey(prefix, userID, "list", hex.EncodeToString(sum[:12]))
}

// UserPattern matches every key of a user under prefix.
func UserPattern(prefix, userID string) string {
	return Key(prefix, "user", userID) + ":*"
}

func prefixOf(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return key
	}
	return parts[1]
}

// Remember reads key, loading and repopulating on miss. Cached values that do
// not decode into T (or decode to JSON null) are purged and treated as a miss.
func Remember[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if c == nil || c.rc == nil {
		return load(ctx)
	}
	prefix := prefixOf(key)

	raw, ok, err := c.rc.GetBytes(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues(prefix, "error").Inc()
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	case ok:
		var out T
		if decodeInto(raw, &out) {
			metrics.CacheLookups.WithLabelValues(prefix, "hit").Inc()
			return out, nil
		}
		metrics.CacheLookups.WithLabelValues(prefix, "corrupt").Inc()
		c.logger.Warn("purging corrupted cache entry", zap.String("key", key))
		if err := c.rc.Del(ctx, key); err != nil {
			c.logger.Warn("cache purge failed", zap.String("key", key), zap.Error(err))
		}
	default:
		metrics.CacheLookups.WithLabelValues(prefix, "miss").Inc()
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if err := c.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("cache populate failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

func decodeInto[T any](raw []byte, out *T) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return false
	}
	switch reflect.TypeOf(out).Elem().Kind() {
	case reflect.Slice, reflect.Array:
		return trimmed[0] == '['
	case reflect.Struct, reflect.Map:
		return trimmed[0] == '{'
	}
	return true
}

// Set stores value as JSON.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil || c.rc == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rc.Set(ctx, key, data, ttl)
}

// Delete invalidates keys. Failures are logged, never surfaced.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c == nil || c.rc == nil || len(keys) == 0 {
		return
	}
	if err := c.rc.Del(ctx, keys...); err != nil {
		c.logger.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// DeletePattern invalidates every key matching a glob pattern.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) {
	if c == nil || c.rc == nil {
		return
	}
	if _, err := c.rc.DelPattern(ctx, pattern); err != nil {
		c.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

// Keys enumerates keys under prefix (all prefixes when empty).
func (c *Cache) Keys(ctx context.Context, prefix string) ([]string, error) {
	if c == nil || c.rc == nil {
		return []string{}, nil
	}
	return c.rc.ScanKeys(ctx, prefixPattern(prefix))
}

// DeletePrefix deletes every key under prefix (all prefixes when empty).
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	if c == nil || c.rc == nil {
		return 0, nil
	}
	return c.rc.DelPattern(ctx, prefixPattern(prefix))
}

// ClearAll drops the whole cache namespace.
func (c *Cache) ClearAll(ctx context.Context) (int64, error) {
	return c.DeletePrefix(ctx, "")
}

func prefixPattern(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return Namespace + ":*"
	}
	return Key(prefix) + ":*"
}

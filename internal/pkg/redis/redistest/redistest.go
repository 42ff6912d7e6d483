// Package redistest starts an in-process Redis for tests.
package redistest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	pkgredis "github.com/vocalingo/core/internal/pkg/redis"
)

// New returns a client bound to a fresh miniredis server that is torn down
// with the test.
func New(t testing.TB) (*pkgredis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return pkgredis.Wrap(rdb), srv
}

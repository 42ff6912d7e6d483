package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalingo/core/internal/pkg/redis/redistest"
)

type folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "vl:folder:abc", Key(PrefixFolder, "abc"))
	assert.Equal(t, "vl:mastery:user:u1:summary", UserKey(PrefixMastery, "u1", "summary"))

	a := ListKey(PrefixFolder, "u1", map[string]string{"name": "Travel", "sort": "asc"})
	b := ListKey(PrefixFolder, "u1", map[string]string{"sort": "asc", "name": "Travel"})
	c := ListKey(PrefixFolder, "u2", map[string]string{"name": "Travel", "sort": "asc"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestRememberMissThenHit(t *testing.T) {
	rc, _ := redistest.New(t)
	c := New(rc)
	ctx := context.Background()
	key := Key(PrefixFolder, "f1")

	loads := 0
	load := func(context.Context) (folder, error) {
		loads++
		return folder{ID: "f1", Name: "Travel"}, nil
	}

	got, err := Remember(ctx, c, key, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "Travel", got.Name)

	got, err = Remember(ctx, c, key, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "Travel", got.Name)
	assert.Equal(t, 1, loads)
}

func TestRememberPurgesCorruptedEntries(t *testing.T) {
	cases := map[string]string{
		"scalar where list expected": `"oops"`,
		"null":                       `null`,
		"truncated json":             `[{"id":"f1"`,
		"object where list expected": `{"id":"f1"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			rc, srv := redistest.New(t)
			c := New(rc)
			ctx := context.Background()
			key := ListKey(PrefixFolder, "u1", map[string]string{})
			require.NoError(t, srv.Set(key, raw))

			loads := 0
			got, err := Remember(ctx, c, key, time.Minute, func(context.Context) ([]folder, error) {
				loads++
				return []folder{{ID: "f1", Name: "Travel"}}, nil
			})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, 1, loads)

			stored, err := srv.Get(key)
			require.NoError(t, err)
			assert.JSONEq(t, `[{"id":"f1","name":"Travel"}]`, stored)
		})
	}
}

func TestRememberLoaderErrorIsNotCached(t *testing.T) {
	rc, srv := redistest.New(t)
	c := New(rc)
	key := Key(PrefixFolder, "missing")

	_, err := Remember(context.Background(), c, key, time.Minute, func(context.Context) (*folder, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	assert.False(t, srv.Exists(key))
}

func TestRememberDegradesWhenRedisIsDown(t *testing.T) {
	rc, srv := redistest.New(t)
	c := New(rc)
	srv.Close()

	got, err := Remember(context.Background(), c, Key(PrefixFolder, "f1"), time.Minute, func(context.Context) (folder, error) {
		return folder{ID: "f1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "f1", got.ID)
}

func TestNilCacheFallsThrough(t *testing.T) {
	var c *Cache
	got, err := Remember(context.Background(), c, "k", 0, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	c.Delete(context.Background(), "k")
}

func TestPrefixEnumerationAndDeletion(t *testing.T) {
	rc, srv := redistest.New(t)
	c := New(rc)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, Key(PrefixFolder, "a"), folder{ID: "a"}, 0))
	require.NoError(t, c.Set(ctx, Key(PrefixFolder, "b"), folder{ID: "b"}, 0))
	require.NoError(t, c.Set(ctx, Key(PrefixVocabulary, "v"), folder{ID: "v"}, 0))
	require.NoError(t, srv.Set("other:key", "x"))

	keys, err := c.Keys(ctx, PrefixFolder)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"vl:folder:a", "vl:folder:b"}, keys)

	n, err := c.DeletePrefix(ctx, PrefixFolder)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.True(t, srv.Exists(Key(PrefixVocabulary, "v")))

	n, err = c.ClearAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.True(t, srv.Exists("other:key"))
}

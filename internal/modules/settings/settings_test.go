package settings

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalingo/core/internal/database/dbtest"
	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/pkg/apperr"
)

var providerTag = func(raw string) (string, error) {
	s, err := String(raw)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(s) {
	case "openai", "anthropic", "openrouter", "groq":
		return strings.ToLower(s), nil
	}
	return "", ErrInvalidValue
}

func TestLookupPrecedence(t *testing.T) {
	svc := NewService(dbtest.New(t))
	ctx := context.Background()

	res, err := Lookup(ctx, svc, "u1", KeyAIProvider, providerTag)
	require.NoError(t, err)
	assert.Equal(t, Missing, res.State)

	require.NoError(t, svc.Set(ctx, models.SystemScope, KeyAIProvider, "anthropic"))
	res, err = Lookup(ctx, svc, "u1", KeyAIProvider, providerTag)
	require.NoError(t, err)
	assert.Equal(t, Found, res.State)
	assert.Equal(t, "anthropic", res.Value)
	assert.Equal(t, models.SystemScope, res.Scope)

	require.NoError(t, svc.Set(ctx, "u1", KeyAIProvider, "groq"))
	res, err = Lookup(ctx, svc, "u1", KeyAIProvider, providerTag)
	require.NoError(t, err)
	assert.Equal(t, "groq", res.Value)
	assert.Equal(t, "u1", res.Scope)

	// upsert keeps a single row
	require.NoError(t, svc.Set(ctx, "u1", KeyAIProvider, "openrouter"))
	rows, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, `"openrouter"`, rows[0].Value)
}

func TestLookupInvalidFallsBackToSystem(t *testing.T) {
	svc := NewService(dbtest.New(t))
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "u1", KeyAIProvider, "mistral"))
	res, err := Lookup(ctx, svc, "u1", KeyAIProvider, providerTag)
	require.NoError(t, err)
	assert.Equal(t, Invalid, res.State)

	require.NoError(t, svc.Set(ctx, models.SystemScope, KeyAIProvider, "openai"))
	res, err = Lookup(ctx, svc, "u1", KeyAIProvider, providerTag)
	require.NoError(t, err)
	assert.Equal(t, Found, res.State)
	assert.Equal(t, "openai", res.Value)
}

type failingReader struct{}

func (failingReader) Raw(context.Context, string, string) (string, bool, error) {
	return "", false, errors.New("db down")
}

func TestLookupSurfacesStoreErrors(t *testing.T) {
	_, err := Lookup(context.Background(), failingReader{}, "u1", KeyAIModel, String)
	require.Error(t, err)
}

func TestSetValidation(t *testing.T) {
	svc := NewService(dbtest.New(t))
	err := svc.Set(context.Background(), "", KeyAIModel, "x")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestJSONParser(t *testing.T) {
	parse := JSON[[]string]()
	v, err := parse(`["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)

	_, err = parse(`"a"`)
	require.ErrorIs(t, err, ErrInvalidValue)
}

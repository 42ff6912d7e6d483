package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/vocalingo/core/internal/models"
)

// State says how a lookup resolved.
type State int

const (
	Missing State = iota
	Invalid
	Found
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Found:
		return "found"
	}
	return "missing"
}

// Resolved is the outcome of a typed lookup. Value is meaningful only when
// State is Found; Scope names the scope that supplied it.
type Resolved[T any] struct {
	State State
	Value T
	Scope string
}

// Reader is the storage side of a lookup.
type Reader interface {
	Raw(ctx context.Context, scope, key string) (string, bool, error)
}

// ErrInvalidValue is returned by parsers that reject a stored value.
var ErrInvalidValue = errors.New("invalid setting value")

// Lookup resolves key for userID: a valid user-scope value wins, then a
// valid system-scope value. An unparseable value at either scope is skipped;
// if nothing valid remains the result is Invalid rather than Missing.
func Lookup[T any](ctx context.Context, r Reader, userID, key string, parse func(raw string) (T, error)) (Resolved[T], error) {
	scopes := []string{models.SystemScope}
	if userID != "" && userID != models.SystemScope {
		scopes = []string{userID, models.SystemScope}
	}

	sawInvalid := false
	for _, scope := range scopes {
		raw, ok, err := r.Raw(ctx, scope, key)
		if err != nil {
			return Resolved[T]{}, err
		}
		if !ok {
			continue
		}
		v, err := parse(raw)
		if err != nil {
			sawInvalid = true
			continue
		}
		return Resolved[T]{State: Found, Value: v, Scope: scope}, nil
	}
	if sawInvalid {
		return Resolved[T]{State: Invalid}, nil
	}
	return Resolved[T]{State: Missing}, nil
}

// String parses a JSON string; a bare non-JSON text is accepted as-is.
// Empty values are invalid.
func String(raw string) (string, error) {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		s = raw
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidValue
	}
	return s, nil
}

// JSON returns a parser decoding into T.
func JSON[T any]() func(string) (T, error) {
	return func(raw string) (T, error) {
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return v, ErrInvalidValue
		}
		return v, nil
	}
}

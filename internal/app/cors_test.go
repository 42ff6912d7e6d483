package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowOrigins(t *testing.T) {
	allow := allowOrigins([]string{"*.example.com", "localhost:*", "https://admin.vocalingo.dev"})

	assert.True(t, allow("https://app.example.com"))
	assert.True(t, allow("http://localhost:5173"))
	assert.True(t, allow("https://admin.vocalingo.dev"))
	assert.False(t, allow("https://example.org"))
	assert.False(t, allow("https://evil-example.com"))
	assert.False(t, allow("http://localhost.evil.io"))
}

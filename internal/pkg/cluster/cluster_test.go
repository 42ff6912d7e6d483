package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceRoles(t *testing.T) {
	for _, key := range instanceEnvKeys {
		t.Setenv(key, "")
	}
	assert.True(t, IsPrimary(), "unnumbered process")

	t.Setenv("INSTANCE_ID", "2")
	id, ok := InstanceID()
	assert.True(t, ok)
	assert.Equal(t, 2, id)
	assert.False(t, ShouldRunCron())

	t.Setenv(EnvInstance, "0")
	assert.True(t, ShouldRunCron(), "first key wins")

	t.Setenv(EnvInstance, "abc")
	assert.False(t, IsPrimary())
}

package cluster

import (
	"os"
	"strconv"
	"strings"
)

// EnvInstance numbers replicas of the service; instance 0 is the primary.
const EnvInstance = "VL_INSTANCE_ID"

var instanceEnvKeys = []string{EnvInstance, "NODE_APP_INSTANCE", "INSTANCE_ID"}

// InstanceID returns the replica number and whether one was configured.
// A malformed value counts as configured but never primary.
func InstanceID() (int, bool) {
	for _, key := range instanceEnvKeys {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return -1, true
		}
		return v, true
	}
	return 0, false
}

// IsPrimary reports whether this process is the primary replica. A single
// unnumbered process is primary.
func IsPrimary() bool {
	id, ok := InstanceID()
	return !ok || id == 0
}

// ShouldRunCron keeps scheduled jobs single-run across replicas.
func ShouldRunCron() bool {
	return IsPrimary()
}

// ShouldLogBootstrap keeps startup logs from being printed once per replica.
func ShouldLogBootstrap() bool {
	return IsPrimary()
}

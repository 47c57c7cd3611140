package hostname

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"wlm-agent/internal/heartbeat"
)

// lookupTimeout bounds the host information query
const lookupTimeout = 5 * time.Second

var errEmptyHostname = errors.New("host reported an empty hostname")

// Resolve returns the name of the local machine as reported by the OS
// The value is not cached; each call queries the host again
func Resolve() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to query host info: %w", err)
	}

	if info.Hostname == "" {
		return "", errEmptyHostname
	}

	return info.Hostname, nil
}

// Static returns a resolver that always reports the given name
// An empty name is reported as a resolution failure
func Static(name string) heartbeat.HostnameFunc {
	return func() (string, error) {
		if name == "" {
			return "", errEmptyHostname
		}
		return name, nil
	}
}

// FromConfig picks the resolver for the agent: a fixed override when one is
// configured, the host lookup otherwise
func FromConfig(override string) heartbeat.HostnameFunc {
	if override != "" {
		return Static(override)
	}
	return Resolve
}

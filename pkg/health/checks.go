package health

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/resilience"
)

// DirCheck reports down when path is no longer a readable directory.
func DirCheck(path string) Check {
	return func(context.Context) ComponentHealth {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		case !info.IsDir():
			return ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("%s is not a directory", path)}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// PingCheck runs ping under timeout. A failure yields onFailure, which is
// StatusDegraded for optional backends.
func PingCheck(name string, timeout time.Duration, onFailure Status, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := resilience.WithTimeout(ctx, timeout, name, ping); err != nil {
			return ComponentHealth{Status: onFailure, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Package async runs fire-and-forget side effects. Failures are logged, never
// returned: callers must not block on (or fail because of) these tasks.
package async

import (
	"context"
	"fmt"
	"time"

	"dealdesk-backend/internal/shared/telemetry"
)

// Go runs fn on its own goroutine with a detached context. A panic or error
// from fn is logged under the given task name and then dropped.
func Go(name string, timeout time.Duration, fn func(ctx context.Context) error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				telemetry.Error("async.panic", map[string]any{
					"task":  name,
					"error": fmt.Sprintf("%v", r),
				})
			}
		}()

		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if err := fn(ctx); err != nil {
			telemetry.Error("async.failed", map[string]any{
				"task":  name,
				"error": err.Error(),
			})
		}
	}()
}

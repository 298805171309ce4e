package vigil

import (
	"context"
	"errors"
)

// Sequenced runs fn until it succeeds, retrying only sequencing
// conflicts. Every retry observes fresh state; any other error, including
// a version conflict, returns immediately. attempts <= 0 uses the default
// budget.
func Sequenced(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultConfig().retryAttempts()
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !errors.Is(err, ErrSequencing) {
			return err
		}
	}

	return err
}

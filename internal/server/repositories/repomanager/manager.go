// Package repomanager selects and owns the user store backend.
package repomanager

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"github.com/sethvargo/go-retry"
)

// RepositoryManager vends the user repository of one backend, prepares its
// schema and releases its connections.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	Close(ctx context.Context) error
}

// pingBackoff is a seam for tests.
var pingBackoff = func() retry.Backoff {
	return retry.WithMaxRetries(5, retry.NewExponential(200*time.Millisecond))
}

// pingWithRetry waits for a freshly started database to accept connections.
func pingWithRetry(ctx context.Context, ping func(context.Context) error) error {
	return retry.Do(ctx, pingBackoff(), func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

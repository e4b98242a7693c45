package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]int
	err := repo.Get(ctx, "reports:summary:2025-2026", &dest)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "reports:summary:2025-2026", map[string]int{"approved": 3}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "reports:*"))
	assert.NoError(t, repo.PingContext(ctx))
}

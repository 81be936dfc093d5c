package jobs

import (
	"context"

	"github.com/wonny/watson/pkg/logger"
)

// CacheClearer drops a cached snapshot
type CacheClearer interface {
	ClearCache()
}

// CacheCleanupJob drops the market data snapshot so the next screen refetches
type CacheCleanupJob struct {
	cache    CacheClearer
	schedule string
	logger   *logger.Logger
}

// NewCacheCleanupJob creates the cleanup job; an empty schedule means daily at midnight
func NewCacheCleanupJob(cache CacheClearer, schedule string, log *logger.Logger) *CacheCleanupJob {
	if schedule == "" {
		schedule = "0 0 0 * * *"
	}
	return &CacheCleanupJob{
		cache:    cache,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *CacheCleanupJob) Name() string {
	return "market_data_cache_cleanup"
}

// Schedule returns the cron schedule
func (j *CacheCleanupJob) Schedule() string {
	return j.schedule
}

// Run clears the cache
func (j *CacheCleanupJob) Run(ctx context.Context) error {
	j.cache.ClearCache()
	j.logger.Debug("Market data cache cleared")
	return nil
}

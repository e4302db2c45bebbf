package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

// Purger deletes rows older than a retention window.
type Purger func(ctx context.Context, olderThan time.Duration) (int64, error)

// RetentionJobParams configure a retention job.
type RetentionJobParams struct {
	Name      string
	Logger    *logger.Logger
	Purge     Purger
	Retention time.Duration
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	purge     Purger
	retention time.Duration
}

// NewRetentionJob builds a job that purges expired rows on every run.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("job name required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Purge == nil {
		return nil, fmt.Errorf("purge function required")
	}
	if params.Retention <= 0 {
		return nil, fmt.Errorf("%s: retention must be positive", params.Name)
	}
	return &retentionJob{
		name:      params.Name,
		logg:      params.Logger,
		purge:     params.Purge,
		retention: params.Retention,
	}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	deleted, err := j.purge(ctx, j.retention)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "cron.retention_complete")
	return nil
}

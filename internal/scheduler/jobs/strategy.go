package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/watson/internal/scheduler"
	"github.com/wonny/watson/internal/strategyconfig"
	"github.com/wonny/watson/pkg/logger"
)

// Runner is one strategy cycle
type Runner interface {
	ID() string
	Run(ctx context.Context) error
}

// StrategyJob runs a strategy cycle on one trigger
// ⭐ SSOT: 전략 실행 스케줄은 이 Job에서만
type StrategyJob struct {
	runner   Runner
	name     string
	schedule string
	logger   *logger.Logger
}

// NewStrategyJobs creates one job per trigger, named <strategy>_<n>
func NewStrategyJobs(r Runner, triggers []strategyconfig.Trigger, log *logger.Logger) ([]*StrategyJob, error) {
	out := make([]*StrategyJob, 0, len(triggers))
	for i, t := range triggers {
		spec, err := scheduler.Spec(t)
		if err != nil {
			return nil, fmt.Errorf("%s trigger %d: %w", r.ID(), i, err)
		}
		out = append(out, &StrategyJob{
			runner:   r,
			name:     fmt.Sprintf("%s_%d", r.ID(), i),
			schedule: spec,
			logger:   log,
		})
	}
	return out, nil
}

// Name returns the job name
func (j *StrategyJob) Name() string {
	return j.name
}

// Schedule returns the cron schedule
func (j *StrategyJob) Schedule() string {
	return j.schedule
}

// Run executes one strategy cycle
func (j *StrategyJob) Run(ctx context.Context) error {
	j.logger.WithStrategy(j.runner.ID()).Info("Starting scheduled strategy run")
	return j.runner.Run(ctx)
}

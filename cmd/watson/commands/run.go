package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/watson/internal/api"
	"github.com/wonny/watson/internal/api/handlers"
	"github.com/wonny/watson/internal/loader"
	"github.com/wonny/watson/internal/scheduler"
	"github.com/wonny/watson/internal/scheduler/jobs"
	"github.com/wonny/watson/internal/strategy"
	"github.com/wonny/watson/internal/strategyconfig"
)

var runOnce bool

func runStrategies(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	deps, err := a.dependencies()
	if err != nil {
		return err
	}

	dir := strategiesPath
	if dir == "" {
		dir = a.cfg.StrategiesPath
	}

	defs, err := loader.LoadDir(dir, a.log)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		PrintWarning(fmt.Sprintf("No enabled strategies in %s", dir))
		return nil
	}

	var oneShot []*strategy.Strategy
	var scheduled []scheduledStrategy
	for _, def := range defs {
		s, err := strategy.Build(def.Config, deps, a.log, a.metrics)
		if err != nil {
			return fmt.Errorf("%s: %w", def.Path, err)
		}
		if err := s.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", s.ID(), err)
		}

		a.log.WithFields(map[string]interface{}{
			"strategy":    s.ID(),
			"config_hash": def.Snapshot.ConfigHash,
			"path":        def.Path,
			"triggers":    len(def.Config.Schedule.Triggers),
		}).Info("Strategy ready")

		if runOnce || len(def.Config.Schedule.Triggers) == 0 {
			oneShot = append(oneShot, s)
			continue
		}
		scheduled = append(scheduled, scheduledStrategy{strategy: s, config: def.Config})
	}

	// 1회 실행 전략 먼저 처리
	var runErrs []error
	for _, s := range oneShot {
		if err := s.Run(ctx); err != nil {
			PrintError(fmt.Sprintf("%s: %v", s.ID(), err))
			runErrs = append(runErrs, fmt.Errorf("%s: %w", s.ID(), err))
			continue
		}
		PrintSuccess(fmt.Sprintf("%s: cycle complete", s.ID()))
	}

	if len(scheduled) == 0 {
		return errors.Join(runErrs...)
	}

	group, err := buildSchedulers(a, scheduled)
	if err != nil {
		return err
	}
	group.start()
	defer group.stop()

	PrintHeader("Scheduled strategies")
	for _, name := range group.jobNames() {
		PrintKeyValue(name, group.nextRun(name), 32)
	}
	PrintSeparator()

	if a.cfg.MetricsEnabled {
		router := api.NewRouter(api.Handlers{
			Jobs:    handlers.NewJobHandler(group),
			Metrics: a.metrics.Handler(),
			DB:      a.db,
		}, a.log)
		server := api.NewOnPort(a.cfg.MetricsPort, a.cfg, a.log, router)
		go func() {
			if err := server.Start(); err != nil {
				a.log.WithError(err).Error("Metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.log.WithError(err).Warn("Metrics server shutdown failed")
			}
		}()
	}

	<-ctx.Done()
	a.log.Info("Shutting down scheduler...")
	return errors.Join(runErrs...)
}

type scheduledStrategy struct {
	strategy *strategy.Strategy
	config   *strategyconfig.Config
}

// schedulerGroup holds one scheduler per strategy timezone
type schedulerGroup []*scheduler.Scheduler

// buildSchedulers registers every trigger plus the daily cache cleanup
func buildSchedulers(a *app, scheduled []scheduledStrategy) (schedulerGroup, error) {
	byZone := make(map[string]*scheduler.Scheduler)
	var zones []string

	for _, ss := range scheduled {
		tz := ss.config.Meta.Timezone
		sch, ok := byZone[tz]
		if !ok {
			loc, err := location(tz)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", ss.strategy.ID(), err)
			}
			sch = scheduler.New(a.log, scheduler.WithLocation(loc))
			byZone[tz] = sch
			zones = append(zones, tz)
		}

		strategyJobs, err := jobs.NewStrategyJobs(ss.strategy, ss.config.Schedule.Triggers, a.log)
		if err != nil {
			return nil, err
		}
		for _, j := range strategyJobs {
			if err := sch.AddJob(j); err != nil {
				return nil, err
			}
		}
	}

	sort.Strings(zones)
	group := make(schedulerGroup, 0, len(zones))
	for _, tz := range zones {
		group = append(group, byZone[tz])
	}

	cleanup := jobs.NewCacheCleanupJob(a.marketData, "", a.log)
	if err := group[0].AddJob(cleanup); err != nil {
		return nil, err
	}

	return group, nil
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return loc, nil
}

func (g schedulerGroup) start() {
	for _, s := range g {
		s.Start()
	}
}

func (g schedulerGroup) stop() {
	for _, s := range g {
		s.Stop()
	}
}

func (g schedulerGroup) jobNames() []string {
	var names []string
	for _, s := range g {
		names = append(names, s.GetAllJobs()...)
	}
	sort.Strings(names)
	return names
}

func (g schedulerGroup) nextRun(name string) string {
	for _, s := range g {
		if next, err := s.NextRun(name); err == nil {
			return next.In(s.Location()).Format(time.RFC3339)
		}
	}
	return "-"
}

// GetJobStats merges stats across schedulers
func (g schedulerGroup) GetJobStats() map[string]scheduler.JobStats {
	all := make(map[string]scheduler.JobStats)
	for _, s := range g {
		for name, st := range s.GetJobStats() {
			all[name] = st
		}
	}
	return all
}

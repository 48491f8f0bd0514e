package schedulerun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowgraph/graphengine/execsvc"
	"github.com/flowgraph/graphengine/runconfig"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchLimit   = 100
)

// Executor is the subset of *execsvc.Service's surface the daemon calls.
// *execsvc.Service satisfies it directly; a telemetry-instrumented
// executor also satisfies it, so scheduled runs can be traced the same
// way as HTTP-triggered ones.
type Executor interface {
	Execute(ctx context.Context, graphID string, cfg runconfig.Config) (execsvc.Result, error)
}

// Config configures the background schedule runner.
type Config struct {
	Service      Executor
	Store        Store
	PollInterval time.Duration
	BatchLimit   int
	Now          func() time.Time
	Logger       *slog.Logger
}

// Daemon periodically executes due RunSchedules.
type Daemon struct {
	service      Executor
	store        Store
	pollInterval time.Duration
	batchLimit   int
	now          func() time.Time
	logger       *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a schedule daemon instance.
func New(cfg Config) (*Daemon, error) {
	if cfg.Service == nil {
		return nil, errors.New("schedulerun daemon service is nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("schedulerun daemon store is nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultBatchLimit
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Daemon{
		service:      cfg.Service,
		store:        cfg.Store,
		pollInterval: cfg.PollInterval,
		batchLimit:   cfg.BatchLimit,
		now:          cfg.Now,
		logger:       cfg.Logger,
		active:       map[string]struct{}{},
	}, nil
}

// Start starts background polling. The first pass runs immediately;
// subsequent passes run on PollInterval until Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	if d == nil {
		return errors.New("schedulerun daemon is nil")
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	d.mu.Unlock()

	go func() {
		defer close(done)
		_ = d.RunOnce(loopCtx)
		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				_ = d.RunOnce(loopCtx)
			}
		}
	}()

	_ = ctx
	return nil
}

// Stop stops background polling, waiting for the in-flight pass (not
// in-flight runs spawned from it) to return.
func (d *Daemon) Stop(ctx context.Context) error {
	if d == nil {
		return nil
	}

	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.cancel = nil
	d.done = nil
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes a single scheduler pass: lists due schedules and
// dispatches each.
func (d *Daemon) RunOnce(ctx context.Context) error {
	if d == nil || d.store == nil || d.service == nil {
		return errors.New("schedulerun daemon is not configured")
	}

	now := d.now().UTC()
	due, err := d.store.ListDueSchedules(ctx, now, d.batchLimit)
	if err != nil {
		return err
	}

	for _, sched := range due {
		d.processDueSchedule(ctx, sched, now)
	}
	return nil
}

func (d *Daemon) processDueSchedule(ctx context.Context, sched RunSchedule, now time.Time) {
	if !sched.Enabled {
		return
	}

	if d.isScheduleActive(sched.ID) {
		d.markSkippedOverlap(ctx, sched, now)
		return
	}

	nextRunAt, err := nextCronRunUTC(sched.CronExpr, now)
	if err != nil {
		d.markScheduleFailure(ctx, sched, now, fmt.Errorf("invalid cron expression: %w", err))
		return
	}

	sched.NextRunAt = nextRunAt
	sched.UpdatedAt = now
	if err := d.store.UpdateSchedule(ctx, sched); err != nil {
		d.logger.Error("update schedule before run", "schedule_id", sched.ID, "graph_id", sched.GraphID, "error", err)
		return
	}

	d.markScheduleActive(sched.ID)
	go d.runSchedule(sched)
}

// runSchedule replays the schedule's stored RunConfig through
// execsvc.Service.Execute and records only the pass/fail summary —
// never the per-node state Execute returns.
func (d *Daemon) runSchedule(sched RunSchedule) {
	defer d.unmarkScheduleActive(sched.ID)

	result, runErr := d.service.Execute(context.Background(), sched.GraphID, sched.RunConfig)

	finish := d.now().UTC()
	latest, found, err := d.store.GetSchedule(context.Background(), sched.ID)
	if err != nil {
		d.logger.Error("load schedule after run", "schedule_id", sched.ID, "graph_id", sched.GraphID, "error", err)
		return
	}
	if !found {
		return
	}

	latest.UpdatedAt = finish
	latest.LastRunAt = &finish
	switch {
	case runErr != nil:
		latest.LastResult = runErr.Error()
	case result.Sentinel != "":
		latest.LastResult = result.Sentinel
	default:
		latest.LastResult = ResultOK
	}

	if err := d.store.UpdateSchedule(context.Background(), latest); err != nil {
		d.logger.Error("persist schedule run result", "schedule_id", sched.ID, "graph_id", sched.GraphID, "error", err)
	}
}

func (d *Daemon) markSkippedOverlap(ctx context.Context, sched RunSchedule, now time.Time) {
	nextRunAt, err := nextCronRunUTC(sched.CronExpr, now)
	if err != nil {
		d.markScheduleFailure(ctx, sched, now, fmt.Errorf("invalid cron expression: %w", err))
		return
	}

	sched.NextRunAt = nextRunAt
	sched.LastResult = ResultSkippedOverlap
	sched.UpdatedAt = now
	if err := d.store.UpdateSchedule(ctx, sched); err != nil {
		d.logger.Error("persist overlap skip", "schedule_id", sched.ID, "graph_id", sched.GraphID, "error", err)
	}
}

func (d *Daemon) markScheduleFailure(ctx context.Context, sched RunSchedule, now time.Time, runErr error) {
	nextRunAt, nextErr := nextCronRunUTC(sched.CronExpr, now)
	if nextErr == nil {
		sched.NextRunAt = nextRunAt
	}
	sched.LastResult = runErr.Error()
	sched.UpdatedAt = now
	if err := d.store.UpdateSchedule(ctx, sched); err != nil {
		d.logger.Error("persist schedule failure", "schedule_id", sched.ID, "graph_id", sched.GraphID, "error", err)
	}
}

func (d *Daemon) isScheduleActive(scheduleID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[scheduleID]
	return ok
}

func (d *Daemon) markScheduleActive(scheduleID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active[scheduleID] = struct{}{}
}

func (d *Daemon) unmarkScheduleActive(scheduleID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, scheduleID)
}

package jobs

import (
	"context"
	"time"

	"futsal_notifier/internal/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Poller is polled on every tick. The notification provider skips the tick
// itself while the live channel is connected.
type Poller interface {
	Poll(ctx context.Context)
}

// PollingJob is the REST fallback schedule for the notification feed.
type PollingJob struct {
	poller        Poller
	logger        *zap.Logger
	cfg           *config.Config
	cronScheduler *cron.Cron
	timeout       time.Duration
}

func NewPollingJob(poller Poller, logger *zap.Logger, cfg *config.Config) *PollingJob {
	cl := NewCronLogger(logger.Named("cron"))
	scheduler := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PollingJob{
		poller:        poller,
		logger:        logger.Named("PollingJob"),
		cfg:           cfg,
		cronScheduler: scheduler,
		timeout:       timeout,
	}
}

// SetupAndStart schedules the poll and starts the scheduler. An empty
// schedule disables polling.
func (j *PollingJob) SetupAndStart() error {
	spec := j.cfg.PollSchedule
	if spec == "" {
		j.logger.Warn("Poll schedule not defined (POLL_SCHEDULE). REST fallback polling is disabled.")
		return nil
	}

	jobID, err := j.cronScheduler.AddFunc(spec, j.runJob)
	if err != nil {
		j.logger.Error("Failed to schedule polling job", zap.String("spec", spec), zap.Error(err))
		return err
	}

	j.logger.Info("Polling job scheduled", zap.String("spec", spec), zap.Any("jobID", jobID))
	j.cronScheduler.Start()
	return nil
}

func (j *PollingJob) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	j.poller.Poll(ctx)
}

// Stop waits for a running poll to finish, up to ten seconds.
func (j *PollingJob) Stop() {
	if j.cronScheduler == nil {
		return
	}
	j.logger.Info("Stopping polling scheduler...")
	stopCtx := j.cronScheduler.Stop()
	select {
	case <-stopCtx.Done():
		j.logger.Info("Polling scheduler stopped gracefully.")
	case <-time.After(10 * time.Second):
		j.logger.Warn("Polling scheduler stop timed out.")
	}
}

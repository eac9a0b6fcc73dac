package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// Snapshotter persists the vector index to disk
type Snapshotter interface {
	Snapshot() error
}

// MailPoller imports unseen mailbox messages
type MailPoller interface {
	Poll(ctx context.Context) (int, error)
}

// Service runs periodic maintenance: sweeping runs orphaned by a crash,
// snapshotting the vector index and polling the intake mailbox. Each concern
// has its own cron schedule and any of them can be left unwired.
type Service struct {
	config         *common.SchedulerConfig
	storage        interfaces.StorageManager
	snapshotter    Snapshotter
	mail           MailPoller
	staleRunMaxAge time.Duration
	cron           *cron.Cron
	logger         arbor.ILogger
	running        bool
}

// NewService creates the maintenance scheduler. snapshotter and mail may be
// nil; the corresponding schedules are then skipped.
func NewService(cfg *common.SchedulerConfig, matchingCfg *common.MatchingConfig, storage interfaces.StorageManager, snapshotter Snapshotter, mail MailPoller, logger arbor.ILogger) *Service {
	maxAge, err := time.ParseDuration(matchingCfg.StaleRunMaxAge)
	if err != nil || maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	return &Service{
		config:         cfg,
		storage:        storage,
		snapshotter:    snapshotter,
		mail:           mail,
		staleRunMaxAge: maxAge,
		cron:           cron.New(),
		logger:         logger,
	}
}

// Start registers the schedules and starts the cron loop
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled")
		return nil
	}
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if s.config.StaleRunSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.StaleRunSchedule, func() {
			if _, err := s.SweepStaleRuns(context.Background()); err != nil {
				s.logger.Warn().Err(err).Msg("Stale run sweep failed")
			}
		}); err != nil {
			return fmt.Errorf("register stale run schedule: %w", err)
		}
	}

	if s.config.SnapshotSchedule != "" && s.snapshotter != nil {
		if _, err := s.cron.AddFunc(s.config.SnapshotSchedule, func() {
			if err := s.snapshotter.Snapshot(); err != nil {
				s.logger.Warn().Err(err).Msg("Vector index snapshot failed")
			}
		}); err != nil {
			return fmt.Errorf("register snapshot schedule: %w", err)
		}
	}

	if s.config.MailPollSchedule != "" && s.mail != nil {
		if _, err := s.cron.AddFunc(s.config.MailPollSchedule, func() {
			if _, err := s.mail.Poll(context.Background()); err != nil {
				s.logger.Warn().Err(err).Msg("Mail poll failed")
			}
		}); err != nil {
			return fmt.Errorf("register mail poll schedule: %w", err)
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().
		Str("stale_runs", s.config.StaleRunSchedule).
		Str("snapshot", s.config.SnapshotSchedule).
		Str("mail", s.config.MailPollSchedule).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs
func (s *Service) Stop() {
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// SweepStaleRuns fails every run that has been "running" longer than the
// configured age, along with its job. Such runs come from a crashed process;
// a live run would have finished or failed on its own. Returns the number of
// runs swept.
func (s *Service) SweepStaleRuns(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.staleRunMaxAge)
	runs, err := s.storage.MatchingRuns().ListStaleRuns(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale runs: %w", err)
	}

	swept := 0
	for _, run := range runs {
		run.MarkFailed("stale run swept")
		if err := s.storage.MatchingRuns().SaveRun(ctx, run); err != nil {
			s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to sweep stale run")
			continue
		}

		job, err := s.storage.MatchingJobs().GetJob(ctx, run.JobID)
		if err == nil && job.Status == models.JobStatusRunning {
			job.MarkFailed("stale run swept")
			if err := s.storage.MatchingJobs().SaveJob(ctx, job); err != nil {
				s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to fail job for stale run")
			}
		}

		s.logger.Info().
			Str("run_id", run.ID).
			Str("job_id", run.JobID).
			Msg("Stale run swept")
		swept++
	}
	return swept, nil
}

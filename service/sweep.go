package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"renderqueue/constant"
	"renderqueue/entities"
)

// Sweep is the out-of-band recovery pass: reclaim running jobs whose
// row went quiet, and optionally re-queue errored jobs still under the
// retry bound. Errored jobs that exhausted their retries are marked
// poison so later sweeps skip them.
func (s *service) Sweep(ctx context.Context, olderThan time.Duration, resetErrors bool) (*SweepResult, error) {
	if olderThan <= 0 {
		olderThan = time.Duration(constant.DefaultStuckMinutes) * time.Minute
	}

	stuck, err := s.repo.ResetStuckJobs(ctx, olderThan)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to reset stuck jobs")
		return nil, err
	}

	jobs := make([]entities.RenderJob, 0, len(stuck))
	jobs = append(jobs, stuck...)

	var poisoned int64
	if resetErrors {
		maxRetries := s.cfg.Sweep.MaxRetries
		if maxRetries <= 0 {
			maxRetries = constant.DefaultMaxAttempts
		}

		retried, err := s.repo.ResetErroredJobs(ctx, maxRetries)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to reset errored jobs")
			return nil, err
		}
		jobs = append(jobs, retried...)

		poisoned, err = s.repo.MarkPoisonedJobs(ctx, maxRetries)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to mark poisoned jobs")
			return nil, err
		}
	}

	if len(jobs) > 0 || poisoned > 0 {
		zerolog.Ctx(ctx).Info().
			Int("reset", len(jobs)).
			Int64("poisoned", poisoned).
			Dur("older_than", olderThan).
			Msg("sweep reclaimed jobs")
	}

	return &SweepResult{
		ResetCount: len(jobs),
		Jobs:       jobs,
		Poisoned:   poisoned,
	}, nil
}

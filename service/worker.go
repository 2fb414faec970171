package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"renderqueue/constant"
	"renderqueue/dto"
	"renderqueue/entities"
	"renderqueue/pkg/rabbitmq"
)

// claimRetries bounds how many unusable jobs (missing image URL) a
// single claim call will fail before giving up for this poll.
const claimRetries = 3

func (s *service) Claim(ctx context.Context, workerID string) (*entities.RenderJob, error) {
	leaseTTL := time.Duration(s.cfg.Worker.LeaseTTLMinutes) * time.Minute

	for i := 0; i < claimRetries; i++ {
		job, err := s.repo.ClaimNextJob(ctx, workerID, leaseTTL)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to claim render job")
			return nil, err
		}
		if job == nil {
			return nil, nil
		}

		// A job without a source image can never render. Fail it and
		// hand the worker the next candidate instead.
		if job.ImageURL == "" {
			zerolog.Ctx(ctx).Warn().Str("job_id", job.ID.String()).Msg("claimed job has no image URL, marking error")
			if failErr := s.repo.FailJob(ctx, job.ID, "missing image URL"); failErr != nil {
				zerolog.Ctx(ctx).Error().Err(failErr).Str("job_id", job.ID.String()).Msg("failed to mark job error")
			}
			continue
		}

		zerolog.Ctx(ctx).Info().
			Str("job_id", job.ID.String()).
			Str("worker_id", workerID).
			Msg("render job claimed")
		return job, nil
	}
	return nil, nil
}

func (s *service) UpdateStatus(ctx context.Context, req dto.StatusUpdateRequest) error {
	status := constant.JobStatus(req.Status)
	if !status.Valid() {
		return ErrInvalidStatus
	}

	switch status {
	case constant.JobStatusDone:
		outputURL := extractOutputURL(req)
		if err := s.repo.CompleteJob(ctx, req.ID, marshalJSON(req.Result), outputURL); err != nil {
			return err
		}
		zerolog.Ctx(ctx).Info().Str("job_id", req.ID.String()).Str("output_url", outputURL).Msg("render job done")
		s.notify(ctx, rabbitmq.RoutingKeyJobCompleted, dto.JobEvent{
			JobID:     req.ID,
			Status:    status.String(),
			OutputURL: outputURL,
		})
		return nil
	case constant.JobStatusError:
		if err := s.repo.FailJob(ctx, req.ID, req.ErrorMessage); err != nil {
			return err
		}
		zerolog.Ctx(ctx).Warn().Str("job_id", req.ID.String()).Str("error", req.ErrorMessage).Msg("render job failed")
		return nil
	default:
		return s.repo.UpdateStatusJob(ctx, status, req.ID)
	}
}

// extractOutputURL denormalizes the artifact location out of the result
// blob so consumers never have to parse it. First match wins.
func extractOutputURL(req dto.StatusUpdateRequest) string {
	for _, key := range []string{"gif_url", "video_url", "url"} {
		if v, ok := req.Result[key].(string); ok && v != "" {
			return v
		}
	}
	return req.OutputURL
}

func (s *service) Heartbeat(ctx context.Context, req dto.HeartbeatRequest) error {
	now := time.Now()
	last := now
	if req.Ts != nil {
		last = *req.Ts
	}

	stat := &entities.WorkerStat{
		ID:                req.ID,
		LastHeartbeat:     last,
		Status:            req.Status,
		PollingIntervalMs: req.PollingIntervalMs,
		Metadata:          marshalJSON(req.Metadata),
		UpdatedAt:         now,
	}
	if err := s.repo.UpsertWorkerStat(ctx, stat); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("worker_id", req.ID).Msg("failed to record heartbeat")
		return err
	}

	zerolog.Ctx(ctx).Debug().Str("worker_id", req.ID).Str("status", req.Status).Msg("worker heartbeat")
	return nil
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"renderqueue/constant"
	"renderqueue/dto"
)

const presignExpiry = 15 * time.Minute

func (s *service) List(ctx context.Context, status string, limit, offset int, includeWorker bool) (*dto.ListResponse, error) {
	if limit <= 0 {
		limit = constant.DefaultListLimit
	}
	if limit > constant.MaxListLimit {
		limit = constant.MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := s.repo.ListJobs(ctx, status, limit, offset)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to list render jobs")
		return nil, err
	}

	for i := range jobs {
		if jobs[i].OutputURL != nil {
			signed := s.presignOutputURL(ctx, *jobs[i].OutputURL)
			jobs[i].OutputURL = &signed
		}
	}

	stats, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	resp := &dto.ListResponse{
		Ok:    true,
		Jobs:  jobs,
		Stats: stats,
		Pagination: dto.Pagination{
			Limit:  limit,
			Offset: offset,
			Total:  total,
		},
	}

	if includeWorker {
		stat, err := s.repo.LatestWorkerStat(ctx)
		if err != nil {
			return nil, err
		}
		resp.WorkerStats = stat
	}
	return resp, nil
}

// presignOutputURL swaps a bare object name for a short-lived signed
// URL on the artifact bucket. Absolute URLs pass through untouched, as
// does anything when the service runs without object storage.
func (s *service) presignOutputURL(ctx context.Context, raw string) string {
	if raw == "" || strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if s.cfg.Storage == nil || s.cfg.MinIOBucket == "" {
		return raw
	}

	signed, err := s.cfg.Storage.PresignedGetObject(ctx, s.cfg.MinIOBucket, raw, presignExpiry, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("object", raw).Msg("failed to presign artifact URL")
		return raw
	}
	return signed.String()
}

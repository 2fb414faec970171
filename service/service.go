package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"renderqueue/config"
	"renderqueue/constant"
	"renderqueue/dto"
	"renderqueue/entities"
	"renderqueue/pkg/rabbitmq"
	"renderqueue/repository"
)

var (
	ErrMissingImageURL = errors.New("no image URL could be resolved from the request")
	ErrInvalidStatus   = errors.New("invalid job status")
)

type SweepResult struct {
	ResetCount int
	Jobs       []entities.RenderJob
	Poisoned   int64
}

type Service interface {
	Enqueue(ctx context.Context, req dto.EnqueueRequest) (*entities.RenderJob, error)
	QueueForSource(ctx context.Context, req dto.QueueJobRequest) (job *entities.RenderJob, created bool, err error)
	Claim(ctx context.Context, workerID string) (*entities.RenderJob, error)
	UpdateStatus(ctx context.Context, req dto.StatusUpdateRequest) error
	Heartbeat(ctx context.Context, req dto.HeartbeatRequest) error
	List(ctx context.Context, status string, limit, offset int, includeWorker bool) (*dto.ListResponse, error)
	Sweep(ctx context.Context, olderThan time.Duration, resetErrors bool) (*SweepResult, error)
}

// Notifier publishes fire-and-forget queue events. May be nil when the
// service runs without a broker (sweep CLI, tests).
type Notifier interface {
	Publish(ctx context.Context, routingKey string, body any) error
}

type service struct {
	repo     repository.RenderJobRepository
	cfg      *config.Config
	notifier Notifier
}

func NewService(repo repository.RenderJobRepository, cfg *config.Config, notifier Notifier) Service {
	return &service{
		repo:     repo,
		cfg:      cfg,
		notifier: notifier,
	}
}

func (s *service) Enqueue(ctx context.Context, req dto.EnqueueRequest) (*entities.RenderJob, error) {
	imageURL := resolveImageURL(req)
	if imageURL == "" {
		return nil, ErrMissingImageURL
	}

	job := &entities.RenderJob{
		ID:          uuid.New(),
		Type:        constant.JobType(req.Type),
		Payload:     marshalJSON(req.Payload),
		ImageURL:    imageURL,
		Priority:    req.Priority,
		Status:      constant.JobStatusPending,
		Attempts:    0,
		MaxAttempts: constant.DefaultMaxAttempts,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to insert render job")
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID.String()).
		Str("type", req.Type).
		Int("priority", req.Priority).
		Msg("render job queued")
	s.notify(ctx, rabbitmq.RoutingKeyJobQueued, dto.JobEvent{
		JobID:  job.ID,
		Type:   req.Type,
		Status: job.Status.String(),
	})
	return job, nil
}

func (s *service) QueueForSource(ctx context.Context, req dto.QueueJobRequest) (*entities.RenderJob, bool, error) {
	if req.ImageURL == "" {
		return nil, false, ErrMissingImageURL
	}

	if req.SourceType != "" && req.SourceID != "" {
		existing, err := s.repo.FindActiveBySource(ctx, req.SourceType, req.SourceID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			zerolog.Ctx(ctx).Info().
				Str("job_id", existing.ID.String()).
				Str("source_type", req.SourceType).
				Str("source_id", req.SourceID).
				Msg("render job already in flight for source")
			return existing, false, nil
		}
	}

	payload := map[string]any{
		"input_url": req.ImageURL,
	}
	if req.Artist != "" {
		payload["artist"] = req.Artist
	}
	if req.Title != "" {
		payload["title"] = req.Title
	}

	job := &entities.RenderJob{
		ID:          uuid.New(),
		Type:        constant.JobTypeAlbumGif,
		Payload:     marshalJSON(payload),
		ImageURL:    req.ImageURL,
		Priority:    req.Priority,
		Status:      constant.JobStatusPending,
		MaxAttempts: constant.DefaultMaxAttempts,
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to insert render job")
		return nil, false, err
	}

	s.notify(ctx, rabbitmq.RoutingKeyJobQueued, dto.JobEvent{
		JobID:  job.ID,
		Type:   string(job.Type),
		Status: job.Status.String(),
	})
	return job, true, nil
}

// resolveImageURL normalizes the image source out of the alternative
// request fields. Precedence: input_url, image_url, then the payload
// keys input_url, image_url, album_cover_url, images[0].
func resolveImageURL(req dto.EnqueueRequest) string {
	if req.InputURL != "" {
		return req.InputURL
	}
	if req.ImageURL != "" {
		return req.ImageURL
	}
	for _, key := range []string{"input_url", "image_url", "album_cover_url"} {
		if v, ok := req.Payload[key].(string); ok && v != "" {
			return v
		}
	}
	if images, ok := req.Payload["images"].([]any); ok && len(images) > 0 {
		if v, ok := images[0].(string); ok {
			return v
		}
	}
	if images, ok := req.Payload["images"].([]string); ok && len(images) > 0 {
		return images[0]
	}
	return ""
}

func (s *service) notify(ctx context.Context, routingKey string, body any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, routingKey, body); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("routing_key", routingKey).Msg("failed to publish queue event")
	}
}

func marshalJSON(m map[string]any) datatypes.JSON {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return raw
}

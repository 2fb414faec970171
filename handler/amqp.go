package handler

import (
	"context"
	"encoding/json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"renderqueue/dto"
	"renderqueue/service"
)

type ServiceDependencies struct {
	QueueService service.Service
}

// EnqueueHandler is the AMQP enqueue path: the backend publishes render
// requests on render.job.request instead of calling HTTP. Same
// semantics as the HTTP enqueue, dedup included.
func EnqueueHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var m dto.EnqueueMessage
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal render request")
		return err
	}

	if m.SourceType != "" {
		_, _, err := deps.QueueService.QueueForSource(ctx, dto.QueueJobRequest{
			ImageURL:   m.ImageURL,
			SourceType: m.SourceType,
			SourceID:   m.SourceID,
			Priority:   m.Priority,
		})
		return err
	}

	_, err := deps.QueueService.Enqueue(ctx, dto.EnqueueRequest{
		Type:     m.Type,
		Payload:  m.Payload,
		Priority: m.Priority,
		ImageURL: m.ImageURL,
	})
	return err
}

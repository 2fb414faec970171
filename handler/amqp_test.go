package handler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"renderqueue/constant"
	"renderqueue/entities"
)

func TestEnqueueHandler(t *testing.T) {
	t.Run("malformed body is an error", func(t *testing.T) {
		svc := &fakeService{}
		deps := ServiceDependencies{QueueService: svc}

		err := EnqueueHandler(context.Background(), amqp.Delivery{Body: []byte("not json")}, deps)

		assert.Error(t, err)
		assert.Empty(t, svc.enqueueReqs)
		assert.Empty(t, svc.queueReqs)
	})

	t.Run("message with a source key goes through dedup", func(t *testing.T) {
		svc := &fakeService{
			queueJob:     &entities.RenderJob{ID: uuid.New(), Status: constant.JobStatusPending},
			queueCreated: true,
		}
		deps := ServiceDependencies{QueueService: svc}

		body := []byte(`{"imageUrl":"https://x/1.jpg","sourceType":"album","sourceId":"disc-42","priority":3}`)
		err := EnqueueHandler(context.Background(), amqp.Delivery{Body: body}, deps)

		require.NoError(t, err)
		require.Len(t, svc.queueReqs, 1)
		assert.Equal(t, "album", svc.queueReqs[0].SourceType)
		assert.Equal(t, "disc-42", svc.queueReqs[0].SourceID)
		assert.Equal(t, 3, svc.queueReqs[0].Priority)
		assert.Empty(t, svc.enqueueReqs)
	})

	t.Run("message without a source key enqueues directly", func(t *testing.T) {
		svc := &fakeService{}
		deps := ServiceDependencies{QueueService: svc}

		body := []byte(`{"type":"shelf_video","imageUrl":"https://x/1.jpg"}`)
		err := EnqueueHandler(context.Background(), amqp.Delivery{Body: body}, deps)

		require.NoError(t, err)
		require.Len(t, svc.enqueueReqs, 1)
		assert.Equal(t, "shelf_video", svc.enqueueReqs[0].Type)
		assert.Equal(t, "https://x/1.jpg", svc.enqueueReqs[0].ImageURL)
	})
}

// Package events publishes job progress events over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/models"
)

// Publisher delivers progress events to subscribers. Publishing is
// fire-and-forget: a delivery failure is logged but never fails the job.
type Publisher interface {
	// Publish sends a progress event for the event's job channel.
	Publish(ctx context.Context, event *models.ProgressEvent)
}

// ChannelForJob returns the pub/sub channel name for a job.
func ChannelForJob(jobID uuid.UUID) string {
	return fmt.Sprintf("catalog:jobs:%s", jobID)
}

type redisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewPublisher creates a Redis-backed publisher. A nil client yields a
// publisher that drops all events, for deployments without Redis.
func NewPublisher(client *redis.Client, logger *zap.Logger) Publisher {
	if client == nil {
		return &noopPublisher{}
	}
	return &redisPublisher{
		client: client,
		logger: logger.Named("events"),
	}
}

var _ Publisher = (*redisPublisher)(nil)

func (p *redisPublisher) Publish(ctx context.Context, event *models.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal progress event",
			zap.String("job_id", event.JobID.String()),
			zap.Error(err))
		return
	}

	if err := p.client.Publish(ctx, ChannelForJob(event.JobID), payload).Err(); err != nil {
		p.logger.Warn("failed to publish progress event",
			zap.String("job_id", event.JobID.String()),
			zap.String("status", string(event.Status)),
			zap.Error(err))
	}
}

type noopPublisher struct{}

func (*noopPublisher) Publish(context.Context, *models.ProgressEvent) {}

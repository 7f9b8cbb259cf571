package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kotche/notes/infrastructure/tracing"
	"github.com/kotche/notes/internal/metrics"
	"github.com/kotche/notes/internal/model"
	"github.com/kotche/notes/internal/service/kafka"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type DefaultDispatcher struct {
	channel kafka.Publisher
	topic   string
	logger  *zap.Logger
	now     func() time.Time
}

func NewDefaultDispatcher(channel kafka.Publisher, topic string, logger *zap.Logger) *DefaultDispatcher {
	return &DefaultDispatcher{
		channel: channel,
		topic:   topic,
		logger:  logger,
		now:     time.Now,
	}
}

// RequestExport authorizes the request, publishes an ExportJob and returns its correlation id.
// Only self-export is allowed: target must equal requester. A publish failure is reported
// as model.ErrChannelUnavailable and means the job was not queued.
func (d *DefaultDispatcher) RequestExport(ctx context.Context, requester, target model.UserID) (_ model.CorrelationID, err error) {
	ctx, span := tracing.StartSpan(ctx, "RequestExport", attribute.String("user.id", string(requester)))
	defer func() {
		metrics.ExportsDispatchedCounter.WithLabelValues(metrics.Outcome(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	if target != requester {
		return "", fmt.Errorf("user '%s' cannot export notes of '%s': %w", requester, target, model.ErrForbidden)
	}

	job := model.ExportJob{
		CorrelationID: model.CorrelationID(uuid.NewString()),
		RequesterID:   requester,
		TargetUserID:  target,
		RequestedAt:   d.now().UTC(),
	}
	span.SetAttributes(attribute.String("export.correlation_id", string(job.CorrelationID)))

	payload, err := EncodeJob(job)
	if err != nil {
		return "", err
	}

	if err = d.channel.Publish(ctx, d.topic, []byte(job.CorrelationID), payload); err != nil {
		d.logger.Error("failed to publish export job",
			zap.String("correlation_id", string(job.CorrelationID)),
			zap.String("topic", d.topic),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %w", model.ErrChannelUnavailable, err)
	}

	d.logger.Info("export job queued",
		zap.String("correlation_id", string(job.CorrelationID)),
		zap.String("requester_id", string(requester)),
	)

	return job.CorrelationID, nil
}

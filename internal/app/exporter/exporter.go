package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kotche/notes/internal/metrics"
	"github.com/kotche/notes/internal/model"
	"github.com/kotche/notes/internal/repository/notes"
	"github.com/kotche/notes/internal/service/export"
	"github.com/kotche/notes/internal/service/kafka"
	"go.uber.org/zap"
)

const (
	retryDelay    = time.Second
	maxRetryDelay = 30 * time.Second

	// maxDeliveryAttempts bounds retries against Telegram; storage failures are retried until shutdown.
	maxDeliveryAttempts = 3

	outcomeDelivered = "delivered"
	outcomeSkipped   = "skipped"
	outcomeMalformed = "malformed"
	outcomeFailed    = "failed"
)

// Sender delivers a rendered export to a user's chat.
type Sender interface {
	SendExport(ctx context.Context, chatID int64, job model.ExportJob, document []byte) error
}

// Exporter consumes export jobs. Jobs were authorized before publication, so the
// worker only loads the target's notes and never re-checks access.
type Exporter struct {
	consumer   kafka.Consumer
	repo       notes.Repository
	sender     Sender
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

func New(consumer kafka.Consumer, repo notes.Repository, sender Sender, logger *zap.Logger) *Exporter {
	return &Exporter{
		consumer:   consumer,
		repo:       repo,
		sender:     sender,
		logger:     logger,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryDelay
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0
	return b
}

// Start blocks until ctx is cancelled. A job is committed once it reaches a final
// outcome; a job interrupted by shutdown stays uncommitted and is redelivered.
func (e *Exporter) Start(ctx context.Context) error {
	e.logger.Info("exporter started")

	for {
		msg, err := e.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Error("error reading export job", zap.Error(err))
			if !sleep(ctx, retryDelay) {
				return nil
			}
			continue
		}

		outcome, done := e.process(ctx, msg)
		if !done {
			return nil
		}
		metrics.ExportsDeliveredCounter.WithLabelValues(outcome).Inc()

		if err = e.consumer.Commit(ctx, msg); err != nil {
			e.logger.Error("error committing export job", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// deliveryError marks a failure on the Telegram side, as opposed to a storage failure.
type deliveryError struct {
	err error
}

func (d *deliveryError) Error() string {
	return fmt.Sprintf("failed to deliver export: %v", d.err)
}

func (d *deliveryError) Unwrap() error {
	return d.err
}

// process retries msg until it reaches a final outcome. It reports false when ctx
// ended first.
func (e *Exporter) process(ctx context.Context, msg kafka.Message) (string, bool) {
	var (
		outcome    string
		deliveries int
	)

	attempt := func() error {
		var err error
		outcome, err = e.handle(ctx, msg)

		var delivery *deliveryError
		if errors.As(err, &delivery) {
			deliveries++
			if deliveries >= maxDeliveryAttempts {
				return backoff.Permanent(err)
			}
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		e.logger.Warn("export job failed, retrying",
			zap.Int64("offset", msg.Offset),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(attempt, backoff.WithContext(e.newBackOff(), ctx), notify)
	if ctx.Err() != nil {
		return "", false
	}
	if err != nil {
		e.logger.Error("giving up on export job", zap.Int64("offset", msg.Offset), zap.Error(err))
	}

	return outcome, true
}

// handle returns an error only for failures worth retrying.
func (e *Exporter) handle(ctx context.Context, msg kafka.Message) (string, error) {
	job, err := export.DecodeJob(msg.Value)
	if err != nil {
		e.logger.Warn("dropping malformed export job", zap.Int64("offset", msg.Offset), zap.Error(err))
		return outcomeMalformed, nil
	}

	log := e.logger.With(
		zap.String("correlation_id", string(job.CorrelationID)),
		zap.String("target_user_id", string(job.TargetUserID)),
	)

	user, err := e.repo.GetUser(ctx, job.TargetUserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			log.Warn("export target no longer exists")
			return outcomeSkipped, nil
		}
		return outcomeFailed, fmt.Errorf("failed to load export target: %w", err)
	}

	if user.TelegramID == nil {
		log.Info("export target has no telegram chat, skipping")
		return outcomeSkipped, nil
	}

	document, err := e.render(ctx, job)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to render export: %w", err)
	}

	if err = e.sender.SendExport(ctx, *user.TelegramID, job, document); err != nil {
		return outcomeFailed, &deliveryError{err: err}
	}

	log.Info("export delivered", zap.Int("bytes", len(document)))
	return outcomeDelivered, nil
}

type exportedNote struct {
	ID        model.NoteID `json:"id"`
	OwnerID   model.UserID `json:"ownerId"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	Tags      []string     `json:"tags"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type exportDocument struct {
	CorrelationID model.CorrelationID `json:"correlationId"`
	UserID        model.UserID        `json:"userId"`
	RequestedAt   time.Time           `json:"requestedAt"`
	Notes         []exportedNote      `json:"notes"`
}

func (e *Exporter) render(ctx context.Context, job model.ExportJob) ([]byte, error) {
	list, err := e.repo.ListAccessibleNotes(ctx, job.TargetUserID)
	if err != nil {
		return nil, err
	}

	doc := exportDocument{
		CorrelationID: job.CorrelationID,
		UserID:        job.TargetUserID,
		RequestedAt:   job.RequestedAt,
		Notes:         make([]exportedNote, 0, len(list)),
	}
	for _, n := range list {
		doc.Notes = append(doc.Notes, exportedNote{
			ID:        n.ID,
			OwnerID:   n.OwnerID,
			Title:     n.Title,
			Body:      n.Body,
			Tags:      n.Tags,
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.UpdatedAt,
		})
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export document: %w", err)
	}
	return payload, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

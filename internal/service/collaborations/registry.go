package collaborations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kotche/notes/infrastructure/tracing"
	"github.com/kotche/notes/internal/metrics"
	"github.com/kotche/notes/internal/model"
	"github.com/kotche/notes/internal/repository/notes"
	"go.opentelemetry.io/otel/attribute"
)

const (
	idPrefix = "collab-"

	operationAdd    = "add"
	operationRemove = "remove"
)

type DefaultRegistry struct {
	repo notes.Repository
	now  func() time.Time
}

func NewDefaultRegistry(repo notes.Repository) *DefaultRegistry {
	return &DefaultRegistry{repo: repo, now: time.Now}
}

func (d *DefaultRegistry) Add(ctx context.Context, noteID model.NoteID, grantee model.UserID) (_ model.CollaborationID, err error) {
	ctx, span := tracing.StartSpan(ctx, "AddCollaboration",
		attribute.String("note.id", string(noteID)),
		attribute.String("user.id", string(grantee)),
	)
	defer func() {
		metrics.CollaborationChangesCounter.WithLabelValues(operationAdd, metrics.Outcome(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	note, err := d.repo.GetNote(ctx, noteID)
	if err != nil {
		return "", err
	}

	// The owner already holds every capability; a grant would be redundant.
	if note.OwnerID == grantee {
		return "", fmt.Errorf("user '%s' owns note '%s': %w", grantee, noteID, model.ErrCollaborationExists)
	}

	known, err := d.repo.UserExists(ctx, grantee)
	if err != nil {
		return "", err
	}
	if !known {
		return "", fmt.Errorf("grant to '%s': %w", grantee, model.ErrInvalidGrantee)
	}

	collaboration := model.Collaboration{
		ID:        model.CollaborationID(idPrefix + uuid.NewString()),
		NoteID:    noteID,
		UserID:    grantee,
		CreatedAt: d.now().UTC(),
	}

	if err = d.repo.CreateCollaboration(ctx, collaboration); err != nil {
		return "", err
	}

	return collaboration.ID, nil
}

func (d *DefaultRegistry) Remove(ctx context.Context, noteID model.NoteID, grantee model.UserID) (err error) {
	ctx, span := tracing.StartSpan(ctx, "RemoveCollaboration",
		attribute.String("note.id", string(noteID)),
		attribute.String("user.id", string(grantee)),
	)
	defer func() {
		metrics.CollaborationChangesCounter.WithLabelValues(operationRemove, metrics.Outcome(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	return d.repo.DeleteCollaboration(ctx, noteID, grantee)
}

func (d *DefaultRegistry) HasActiveGrant(ctx context.Context, noteID model.NoteID, userID model.UserID) (bool, error) {
	return d.repo.CollaborationExists(ctx, noteID, userID)
}

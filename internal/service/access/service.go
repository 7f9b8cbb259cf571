package access

import (
	"context"
	"fmt"
	"sort"

	"github.com/kotche/notes/infrastructure/tracing"
	"github.com/kotche/notes/internal/metrics"
	"github.com/kotche/notes/internal/model"
	"github.com/kotche/notes/internal/repository/notes"
	"go.opentelemetry.io/otel/attribute"
)

const (
	checkOwnership = "ownership"
	checkAccess    = "access"
)

// DefaultService reads the current note and grant rows on every call; nothing is cached.
// Bind it to a transaction-scoped repository to make a check and the following mutation atomic.
type DefaultService struct {
	repo notes.Repository
}

func NewDefaultService(repo notes.Repository) *DefaultService {
	return &DefaultService{repo: repo}
}

func (d *DefaultService) VerifyOwnership(ctx context.Context, noteID model.NoteID, identity model.UserID) (err error) {
	ctx, span := tracing.StartSpan(ctx, "VerifyOwnership",
		attribute.String("note.id", string(noteID)),
		attribute.String("user.id", string(identity)),
	)
	defer func() {
		metrics.AccessChecksCounter.WithLabelValues(checkOwnership, metrics.Outcome(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	caps, err := d.capabilities(ctx, noteID, identity, false)
	if err != nil {
		return err
	}

	if !caps.CanManage() {
		return fmt.Errorf("user '%s' does not own note '%s': %w", identity, noteID, model.ErrForbidden)
	}

	return nil
}

func (d *DefaultService) VerifyAccess(ctx context.Context, noteID model.NoteID, identity model.UserID) (err error) {
	ctx, span := tracing.StartSpan(ctx, "VerifyAccess",
		attribute.String("note.id", string(noteID)),
		attribute.String("user.id", string(identity)),
	)
	defer func() {
		metrics.AccessChecksCounter.WithLabelValues(checkAccess, metrics.Outcome(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	caps, err := d.capabilities(ctx, noteID, identity, true)
	if err != nil {
		return err
	}

	if !caps.CanAccess() {
		return fmt.Errorf("user '%s' has no access to note '%s': %w", identity, noteID, model.ErrForbidden)
	}

	return nil
}

func (d *DefaultService) Capabilities(ctx context.Context, noteID model.NoteID, identity model.UserID) (model.CapabilitySet, error) {
	return d.capabilities(ctx, noteID, identity, true)
}

// capabilities derives the set from the note row and, when withGrant is set and the identity
// is not the owner, from the grant row. A missing note always wins over a denial.
func (d *DefaultService) capabilities(ctx context.Context, noteID model.NoteID, identity model.UserID, withGrant bool) (model.CapabilitySet, error) {
	var caps model.CapabilitySet

	note, err := d.repo.GetNote(ctx, noteID)
	if err != nil {
		return caps, err
	}

	if note.OwnerID == identity {
		return caps.With(model.CapabilityOwner), nil
	}

	if !withGrant {
		return caps, nil
	}

	granted, err := d.repo.CollaborationExists(ctx, noteID, identity)
	if err != nil {
		return caps, err
	}
	if granted {
		caps = caps.With(model.CapabilityCollaborator)
	}

	return caps, nil
}

func (d *DefaultService) ListAccessibleNotes(ctx context.Context, identity model.UserID) ([]model.Note, error) {
	ctx, span := tracing.StartSpan(ctx, "ListAccessibleNotes", attribute.String("user.id", string(identity)))
	defer span.End()

	list, err := d.repo.ListAccessibleNotes(ctx, identity)
	if err != nil {
		return nil, err
	}

	seen := make(map[model.NoteID]struct{}, len(list))
	out := make([]model.Note, 0, len(list))
	for _, note := range list {
		if _, dup := seen[note.ID]; dup {
			continue
		}
		seen[note.ID] = struct{}{}
		out = append(out, note)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

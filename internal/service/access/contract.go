package access

import (
	"context"

	"github.com/kotche/notes/internal/model"
)

type (
	// Service is the single authority on who may act on a note.
	// Ownership and access are separate checks: collaborators may edit content but never
	// delete the note or manage its grants.
	Service interface {
		// VerifyOwnership fails with model.ErrNoteNotFound or model.ErrForbidden.
		VerifyOwnership(ctx context.Context, noteID model.NoteID, identity model.UserID) error
		// VerifyAccess succeeds for the owner or a collaborator with an active grant.
		VerifyAccess(ctx context.Context, noteID model.NoteID, identity model.UserID) error
		Capabilities(ctx context.Context, noteID model.NoteID, identity model.UserID) (model.CapabilitySet, error)
		ListAccessibleNotes(ctx context.Context, identity model.UserID) ([]model.Note, error)
	}
)

package collaborations

import (
	"context"

	"github.com/kotche/notes/internal/model"
)

type (
	// Registry manages collaboration grants. It enforces grant invariants on its own and
	// does not check who is asking; callers verify ownership first.
	Registry interface {
		Add(ctx context.Context, noteID model.NoteID, grantee model.UserID) (model.CollaborationID, error)
		// Remove is not idempotent: a second call for the same pair fails with model.ErrCollaborationNotFound.
		Remove(ctx context.Context, noteID model.NoteID, grantee model.UserID) error
		HasActiveGrant(ctx context.Context, noteID model.NoteID, userID model.UserID) (bool, error)
	}
)

package notes

import (
	"context"

	"github.com/kotche/notes/internal/model"
)

type (
	// Content holds the caller-editable fields of a note.
	Content struct {
		Title string
		Body  string
		Tags  []string
	}

	Service interface {
		EnsureUserExists(ctx context.Context, user model.User) error
		LinkTelegram(ctx context.Context, identity model.UserID, chatID int64) error
		Create(ctx context.Context, owner model.UserID, content Content) (*model.Note, error)
		Get(ctx context.Context, identity model.UserID, noteID model.NoteID) (*model.Note, model.CapabilitySet, error)
		Update(ctx context.Context, identity model.UserID, noteID model.NoteID, content Content) (*model.Note, error)
		Delete(ctx context.Context, identity model.UserID, noteID model.NoteID) error
		List(ctx context.Context, identity model.UserID) ([]model.Note, error)
		AddCollaborator(ctx context.Context, owner model.UserID, noteID model.NoteID, grantee model.UserID) (model.CollaborationID, error)
		RemoveCollaborator(ctx context.Context, owner model.UserID, noteID model.NoteID, grantee model.UserID) error
	}
)

package notes

import (
	"context"

	"github.com/kotche/notes/internal/model"
)

type (
	// Repository is the storage contract for users, notes and collaboration rows.
	Repository interface {
		UserExists(ctx context.Context, userID model.UserID) (bool, error)
		CreateUser(ctx context.Context, user model.User) error
		GetUser(ctx context.Context, userID model.UserID) (*model.User, error)
		// SetTelegramID links a chat for export delivery; model.ErrUserNotFound for unknown users.
		SetTelegramID(ctx context.Context, userID model.UserID, chatID int64) error

		// GetNote returns model.ErrNoteNotFound when the note does not exist.
		GetNote(ctx context.Context, noteID model.NoteID) (*model.Note, error)
		// GetNoteForUpdate behaves like GetNote, but inside a transaction the row stays
		// locked until commit. Mutations take it before their authorization check.
		GetNoteForUpdate(ctx context.Context, noteID model.NoteID) (*model.Note, error)
		// SaveNote inserts the note or updates its mutable fields.
		SaveNote(ctx context.Context, note model.Note) error
		// DeleteNote removes the note together with all of its collaborations.
		DeleteNote(ctx context.Context, noteID model.NoteID) error
		// ListAccessibleNotes returns notes owned by or shared with userID, once each, oldest first.
		ListAccessibleNotes(ctx context.Context, userID model.UserID) ([]model.Note, error)

		// CreateCollaboration fails with model.ErrCollaborationExists on a duplicate pair
		// and with model.ErrInvalidGrantee when the user is unknown.
		CreateCollaboration(ctx context.Context, collaboration model.Collaboration) error
		// DeleteCollaboration returns model.ErrCollaborationNotFound when no grant exists.
		DeleteCollaboration(ctx context.Context, noteID model.NoteID, userID model.UserID) error
		CollaborationExists(ctx context.Context, noteID model.NoteID, userID model.UserID) (bool, error)
	}

	// Transactor runs fn as a single unit of work. Any error returned by fn, or a cancelled
	// context, discards every change made through the repository handed to fn.
	Transactor interface {
		WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	}

	Store interface {
		Repository
		Transactor
		Close() error
	}
)

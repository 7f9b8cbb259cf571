package notes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kotche/notes/internal/model"
	"github.com/kotche/notes/internal/repository/notes"
	"github.com/kotche/notes/internal/service/access"
	"github.com/kotche/notes/internal/service/collaborations"
)

const noteIDPrefix = "note-"

// DefaultService runs every authorization check in the same transaction as the
// mutation it guards, so a grant revoked or a note deleted in between cannot slip through.
// Mutations lock the note row before checking; reads do not.
type DefaultService struct {
	store notes.Store
	now   func() time.Time
}

func NewDefaultService(store notes.Store) *DefaultService {
	return &DefaultService{store: store, now: time.Now}
}

func (d *DefaultService) EnsureUserExists(ctx context.Context, user model.User) error {
	exists, err := d.store.UserExists(ctx, user.ID)
	if err != nil {
		return err
	}

	if !exists {
		if err = d.store.CreateUser(ctx, user); err != nil {
			return err
		}
	}

	return nil
}

// LinkTelegram records the chat that receives the caller's exports.
func (d *DefaultService) LinkTelegram(ctx context.Context, identity model.UserID, chatID int64) error {
	if chatID == 0 {
		return fmt.Errorf("chat id must be set: %w", model.ErrInvalidChatID)
	}

	return d.store.SetTelegramID(ctx, identity, chatID)
}

func (d *DefaultService) Create(ctx context.Context, owner model.UserID, content Content) (*model.Note, error) {
	now := d.now().UTC()
	note := model.Note{
		ID:        model.NoteID(noteIDPrefix + uuid.NewString()),
		OwnerID:   owner,
		Title:     content.Title,
		Body:      content.Body,
		Tags:      normalizeTags(content.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := d.store.SaveNote(ctx, note); err != nil {
		return nil, err
	}

	return &note, nil
}

func (d *DefaultService) Get(ctx context.Context, identity model.UserID, noteID model.NoteID) (*model.Note, model.CapabilitySet, error) {
	var (
		note *model.Note
		caps model.CapabilitySet
	)

	err := d.store.WithinTransaction(ctx, func(ctx context.Context, repo notes.Repository) error {
		acl := access.NewDefaultService(repo)
		if err := acl.VerifyAccess(ctx, noteID, identity); err != nil {
			return err
		}

		var err error
		if caps, err = acl.Capabilities(ctx, noteID, identity); err != nil {
			return err
		}

		note, err = repo.GetNote(ctx, noteID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	return note, caps, nil
}

func (d *DefaultService) Update(ctx context.Context, identity model.UserID, noteID model.NoteID, content Content) (*model.Note, error) {
	var note *model.Note

	err := d.store.WithinTransaction(ctx, func(ctx context.Context, repo notes.Repository) error {
		current, err := repo.GetNoteForUpdate(ctx, noteID)
		if err != nil {
			return err
		}

		if err = access.NewDefaultService(repo).VerifyAccess(ctx, noteID, identity); err != nil {
			return err
		}

		current.Title = content.Title
		current.Body = content.Body
		current.Tags = normalizeTags(content.Tags)
		current.UpdatedAt = d.now().UTC()

		if err = repo.SaveNote(ctx, *current); err != nil {
			return err
		}

		note = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	return note, nil
}

func (d *DefaultService) Delete(ctx context.Context, identity model.UserID, noteID model.NoteID) error {
	return d.store.WithinTransaction(ctx, func(ctx context.Context, repo notes.Repository) error {
		if _, err := repo.GetNoteForUpdate(ctx, noteID); err != nil {
			return err
		}

		if err := access.NewDefaultService(repo).VerifyOwnership(ctx, noteID, identity); err != nil {
			return err
		}

		return repo.DeleteNote(ctx, noteID)
	})
}

func (d *DefaultService) List(ctx context.Context, identity model.UserID) ([]model.Note, error) {
	return access.NewDefaultService(d.store).ListAccessibleNotes(ctx, identity)
}

func (d *DefaultService) AddCollaborator(ctx context.Context, owner model.UserID, noteID model.NoteID, grantee model.UserID) (model.CollaborationID, error) {
	var id model.CollaborationID

	err := d.store.WithinTransaction(ctx, func(ctx context.Context, repo notes.Repository) error {
		if _, err := repo.GetNoteForUpdate(ctx, noteID); err != nil {
			return err
		}

		if err := access.NewDefaultService(repo).VerifyOwnership(ctx, noteID, owner); err != nil {
			return err
		}

		var err error
		id, err = d.registry(repo).Add(ctx, noteID, grantee)
		return err
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

func (d *DefaultService) RemoveCollaborator(ctx context.Context, owner model.UserID, noteID model.NoteID, grantee model.UserID) error {
	return d.store.WithinTransaction(ctx, func(ctx context.Context, repo notes.Repository) error {
		if _, err := repo.GetNoteForUpdate(ctx, noteID); err != nil {
			return err
		}

		if err := access.NewDefaultService(repo).VerifyOwnership(ctx, noteID, owner); err != nil {
			return err
		}

		return d.registry(repo).Remove(ctx, noteID, grantee)
	})
}

func (d *DefaultService) registry(repo notes.Repository) collaborations.Registry {
	return collaborations.NewDefaultRegistry(repo)
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return append([]string(nil), tags...)
}

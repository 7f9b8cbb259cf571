package notes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kotche/notes/internal/model"
	notes_repo "github.com/kotche/notes/internal/repository/notes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx   context.Context
	store *notes_repo.MemoryRepository
	svc   *DefaultService
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: notes_repo.NewMemoryRepository(),
		clock: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewDefaultService(f.store)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}

	for _, id := range []model.UserID{"alice", "bob", "carol"} {
		require.NoError(t, f.svc.EnsureUserExists(f.ctx, model.User{ID: id, Login: string(id)}))
	}
	return f
}

func TestService_CollaborationScenario(t *testing.T) {
	f := newFixture(t)

	note, err := f.svc.Create(f.ctx, "alice", Content{Title: "n1", Body: "hello", Tags: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, model.UserID("alice"), note.OwnerID)

	_, err = f.svc.AddCollaborator(f.ctx, "alice", note.ID, "bob")
	require.NoError(t, err)

	got, caps, err := f.svc.Get(f.ctx, "bob", note.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Body)
	assert.Equal(t, []string{"collaborator"}, caps.Strings())

	updated, err := f.svc.Update(f.ctx, "bob", note.ID, Content{Title: "n1", Body: "edited by bob"})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(note.UpdatedAt))
	assert.Equal(t, note.CreatedAt, updated.CreatedAt)
	assert.Equal(t, []string{}, updated.Tags)

	_, err = f.svc.AddCollaborator(f.ctx, "bob", note.ID, "carol")
	assert.ErrorIs(t, err, model.ErrForbidden, "collaborators cannot grant access")

	assert.ErrorIs(t, f.svc.RemoveCollaborator(f.ctx, "bob", note.ID, "bob"), model.ErrForbidden)
	assert.ErrorIs(t, f.svc.Delete(f.ctx, "bob", note.ID), model.ErrForbidden, "collaborators cannot delete")

	require.NoError(t, f.svc.RemoveCollaborator(f.ctx, "alice", note.ID, "bob"))

	_, _, err = f.svc.Get(f.ctx, "bob", note.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.Update(f.ctx, "bob", note.ID, Content{Title: "again"})
	assert.ErrorIs(t, err, model.ErrForbidden)

	assert.ErrorIs(t, f.svc.RemoveCollaborator(f.ctx, "alice", note.ID, "bob"), model.ErrCollaborationNotFound)
}

func TestService_DeleteCascades(t *testing.T) {
	f := newFixture(t)

	note, err := f.svc.Create(f.ctx, "alice", Content{Title: "n1"})
	require.NoError(t, err)
	for _, user := range []model.UserID{"bob", "carol"} {
		_, err = f.svc.AddCollaborator(f.ctx, "alice", note.ID, user)
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.Delete(f.ctx, "alice", note.ID))

	for _, user := range []model.UserID{"bob", "carol"} {
		granted, err := f.store.CollaborationExists(f.ctx, note.ID, user)
		require.NoError(t, err)
		assert.False(t, granted)

		_, _, err = f.svc.Get(f.ctx, user, note.ID)
		assert.ErrorIs(t, err, model.ErrNoteNotFound)
	}
	assert.ErrorIs(t, f.svc.Delete(f.ctx, "alice", note.ID), model.ErrNoteNotFound)
}

func TestService_AddCollaboratorErrors(t *testing.T) {
	f := newFixture(t)

	note, err := f.svc.Create(f.ctx, "alice", Content{Title: "n1"})
	require.NoError(t, err)

	_, err = f.svc.AddCollaborator(f.ctx, "alice", "missing", "bob")
	assert.ErrorIs(t, err, model.ErrNoteNotFound)

	_, err = f.svc.AddCollaborator(f.ctx, "alice", note.ID, "nobody")
	assert.ErrorIs(t, err, model.ErrInvalidGrantee)

	_, err = f.svc.AddCollaborator(f.ctx, "alice", note.ID, "bob")
	require.NoError(t, err)
	_, err = f.svc.AddCollaborator(f.ctx, "alice", note.ID, "bob")
	assert.ErrorIs(t, err, model.ErrCollaborationExists)
}

func TestService_List(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Create(f.ctx, "alice", Content{Title: "first"})
	require.NoError(t, err)
	shared, err := f.svc.Create(f.ctx, "carol", Content{Title: "shared"})
	require.NoError(t, err)
	_, err = f.svc.Create(f.ctx, "carol", Content{Title: "private"})
	require.NoError(t, err)
	last, err := f.svc.Create(f.ctx, "alice", Content{Title: "last"})
	require.NoError(t, err)

	_, err = f.svc.AddCollaborator(f.ctx, "carol", shared.ID, "alice")
	require.NoError(t, err)

	list, err := f.svc.List(f.ctx, "alice")
	require.NoError(t, err)

	var ids []model.NoteID
	for _, n := range list {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []model.NoteID{first.ID, shared.ID, last.ID}, ids)
}

func TestService_CancelledContext(t *testing.T) {
	f := newFixture(t)

	note, err := f.svc.Create(f.ctx, "alice", Content{Title: "n1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	_, err = f.svc.AddCollaborator(ctx, "alice", note.ID, "bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	granted, err := f.store.CollaborationExists(f.ctx, note.ID, "bob")
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestService_LinkTelegram(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.LinkTelegram(f.ctx, "alice", 31337))

	user, err := f.store.GetUser(f.ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, user.TelegramID)
	assert.Equal(t, int64(31337), *user.TelegramID)

	assert.ErrorIs(t, f.svc.LinkTelegram(f.ctx, "alice", 0), model.ErrInvalidChatID)
	assert.ErrorIs(t, f.svc.LinkTelegram(f.ctx, "ghost", 1), model.ErrUserNotFound)
}

// lockCountingStore counts row locks taken through transaction-scoped repositories.
type lockCountingStore struct {
	*notes_repo.MemoryRepository
	locks int
}

type lockCountingRepository struct {
	notes_repo.Repository
	store *lockCountingStore
}

func (l *lockCountingStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo notes_repo.Repository) error) error {
	return l.MemoryRepository.WithinTransaction(ctx, func(ctx context.Context, repo notes_repo.Repository) error {
		return fn(ctx, &lockCountingRepository{Repository: repo, store: l})
	})
}

func (l *lockCountingRepository) GetNoteForUpdate(ctx context.Context, noteID model.NoteID) (*model.Note, error) {
	l.store.locks++
	return l.Repository.GetNoteForUpdate(ctx, noteID)
}

func TestService_OnlyMutationsLockTheNote(t *testing.T) {
	f := newFixture(t)
	store := &lockCountingStore{MemoryRepository: f.store}
	svc := NewDefaultService(store)

	note, err := svc.Create(f.ctx, "alice", Content{Title: "n1"})
	require.NoError(t, err)

	_, _, err = svc.Get(f.ctx, "alice", note.ID)
	require.NoError(t, err)
	assert.Zero(t, store.locks, "reads must not lock the note")

	_, err = svc.Update(f.ctx, "alice", note.ID, Content{Title: "n2"})
	require.NoError(t, err)
	_, err = svc.AddCollaborator(f.ctx, "alice", note.ID, "bob")
	require.NoError(t, err)
	require.NoError(t, svc.RemoveCollaborator(f.ctx, "alice", note.ID, "bob"))
	require.NoError(t, svc.Delete(f.ctx, "alice", note.ID))

	assert.Equal(t, 4, store.locks)
}

package notes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kotche/notes/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, store Store) {
		t.Helper()
		ctx := context.Background()
		for _, id := range []model.UserID{"alice", "bob", "carol"} {
			require.NoError(t, store.CreateUser(ctx, model.User{ID: id, Login: string(id)}))
		}
	}

	note := func(id model.NoteID, owner model.UserID, createdAt time.Time) model.Note {
		return model.Note{
			ID:        id,
			OwnerID:   owner,
			Title:     "title " + string(id),
			Body:      "body",
			Tags:      []string{"a", "b"},
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		}
	}

	t.Run("save and get note", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()

		require.NoError(t, store.SaveNote(ctx, note("n1", "alice", base)))

		got, err := store.GetNote(ctx, "n1")
		require.NoError(t, err)
		assert.Equal(t, model.UserID("alice"), got.OwnerID)
		assert.Equal(t, []string{"a", "b"}, got.Tags)
		assert.True(t, got.CreatedAt.Equal(base))

		updated := *got
		updated.Title = "changed"
		updated.UpdatedAt = base.Add(time.Minute)
		require.NoError(t, store.SaveNote(ctx, updated))

		got, err = store.GetNote(ctx, "n1")
		require.NoError(t, err)
		assert.Equal(t, "changed", got.Title)
		assert.True(t, got.UpdatedAt.Equal(base.Add(time.Minute)))

		_, err = store.GetNote(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNoteNotFound)
	})

	t.Run("link telegram chat", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()

		user, err := store.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, user.TelegramID)

		require.NoError(t, store.SetTelegramID(ctx, "alice", 4242))

		user, err = store.GetUser(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, user.TelegramID)
		assert.Equal(t, int64(4242), *user.TelegramID)

		assert.ErrorIs(t, store.SetTelegramID(ctx, "mallory", 1), model.ErrUserNotFound)
	})

	t.Run("get note for update", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()
		require.NoError(t, store.SaveNote(ctx, note("n1", "alice", base)))

		err := store.WithinTransaction(ctx, func(ctx context.Context, repo Repository) error {
			got, err := repo.GetNoteForUpdate(ctx, "n1")
			if err != nil {
				return err
			}
			assert.Equal(t, model.UserID("alice"), got.OwnerID)

			_, err = repo.GetNoteForUpdate(ctx, "missing")
			assert.ErrorIs(t, err, model.ErrNoteNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("collaboration uniqueness", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()
		require.NoError(t, store.SaveNote(ctx, note("n1", "alice", base)))

		grant := model.Collaboration{ID: "c1", NoteID: "n1", UserID: "bob", CreatedAt: base}
		require.NoError(t, store.CreateCollaboration(ctx, grant))

		grant.ID = "c2"
		assert.ErrorIs(t, store.CreateCollaboration(ctx, grant), model.ErrCollaborationExists)

		unknown := model.Collaboration{ID: "c3", NoteID: "n1", UserID: "mallory", CreatedAt: base}
		assert.ErrorIs(t, store.CreateCollaboration(ctx, unknown), model.ErrInvalidGrantee)

		exists, err := store.CollaborationExists(ctx, "n1", "bob")
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, store.DeleteCollaboration(ctx, "n1", "bob"))
		assert.ErrorIs(t, store.DeleteCollaboration(ctx, "n1", "bob"), model.ErrCollaborationNotFound)
	})

	t.Run("concurrent grants for the same pair", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()
		require.NoError(t, store.SaveNote(ctx, note("n1", "alice", base)))

		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := store.CreateCollaboration(ctx, model.Collaboration{
					ID:        model.CollaborationID("c" + string(rune('a'+i))),
					NoteID:    "n1",
					UserID:    "bob",
					CreatedAt: base,
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, model.ErrCollaborationExists):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, workers-1, conflicts)
	})

	t.Run("delete cascades collaborations", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()
		require.NoError(t, store.SaveNote(ctx, note("n1", "alice", base)))
		require.NoError(t, store.CreateCollaboration(ctx, model.Collaboration{ID: "c1", NoteID: "n1", UserID: "bob", CreatedAt: base}))
		require.NoError(t, store.CreateCollaboration(ctx, model.Collaboration{ID: "c2", NoteID: "n1", UserID: "carol", CreatedAt: base}))

		require.NoError(t, store.DeleteNote(ctx, "n1"))

		for _, user := range []model.UserID{"bob", "carol"} {
			exists, err := store.CollaborationExists(ctx, "n1", user)
			require.NoError(t, err)
			assert.False(t, exists)
		}
		assert.ErrorIs(t, store.DeleteNote(ctx, "n1"), model.ErrNoteNotFound)
	})

	t.Run("list accessible notes", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()
		require.NoError(t, store.SaveNote(ctx, note("n3", "bob", base.Add(3*time.Hour))))
		require.NoError(t, store.SaveNote(ctx, note("n1", "alice", base.Add(time.Hour))))
		require.NoError(t, store.SaveNote(ctx, note("n2", "carol", base.Add(2*time.Hour))))
		require.NoError(t, store.SaveNote(ctx, note("n4", "carol", base)))
		require.NoError(t, store.CreateCollaboration(ctx, model.Collaboration{ID: "c1", NoteID: "n2", UserID: "alice", CreatedAt: base}))
		require.NoError(t, store.CreateCollaboration(ctx, model.Collaboration{ID: "c2", NoteID: "n2", UserID: "bob", CreatedAt: base}))

		notes, err := store.ListAccessibleNotes(ctx, "alice")
		require.NoError(t, err)

		var ids []model.NoteID
		for _, n := range notes {
			ids = append(ids, n.ID)
		}
		assert.Equal(t, []model.NoteID{"n1", "n2"}, ids)
	})

	t.Run("transaction rollback", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		ctx := context.Background()
		require.NoError(t, store.SaveNote(ctx, note("n1", "alice", base)))

		errBoom := errors.New("boom")
		err := store.WithinTransaction(ctx, func(ctx context.Context, repo Repository) error {
			if err := repo.CreateCollaboration(ctx, model.Collaboration{ID: "c1", NoteID: "n1", UserID: "bob", CreatedAt: base}); err != nil {
				return err
			}
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)

		exists, err := store.CollaborationExists(ctx, "n1", "bob")
		require.NoError(t, err)
		assert.False(t, exists, "rolled back grant must not be visible")
	})

	t.Run("cancelled context commits nothing", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)
		require.NoError(t, store.SaveNote(context.Background(), note("n1", "alice", base)))

		ctx, cancel := context.WithCancel(context.Background())
		err := store.WithinTransaction(ctx, func(ctx context.Context, repo Repository) error {
			if err := repo.DeleteNote(ctx, "n1"); err != nil {
				return err
			}
			cancel()
			return nil
		})
		assert.Error(t, err)

		_, err = store.GetNote(context.Background(), "n1")
		assert.NoError(t, err)
	})
}

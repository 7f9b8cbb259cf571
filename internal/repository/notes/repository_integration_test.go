//go:build integration

package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/kotche/notes/internal/model"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgUser     = "notes"
	pgPassword = "notes"
	pgDatabase = "notes"
)

// startPostgres runs a disposable PostgreSQL container and returns its connection string.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDatabase,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgUser, pgPassword, host, port.Port(), pgDatabase)
}

func migrationsURL(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return "file://" + filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

func newPostgresStore(t *testing.T, dsn, source string) *DefaultRepository {
	t.Helper()

	m, err := migrate.New(source, dsn)
	require.NoError(t, err)
	if err = m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}
	srcErr, dbErr := m.Close()
	require.NoError(t, srcErr)
	require.NoError(t, dbErr)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewDefaultRepository(db)
}

func TestDefaultRepository(t *testing.T) {
	dsn := startPostgres(t)
	source := migrationsURL(t)

	runStoreContract(t, func(t *testing.T) Store {
		return newPostgresStore(t, dsn, source)
	})

	t.Run("reads in a transaction leave the row unlocked", func(t *testing.T) {
		store := newPostgresStore(t, dsn, source)
		ctx := context.Background()
		require.NoError(t, store.CreateUser(ctx, model.User{ID: "alice", Login: "alice"}))
		now := time.Now().UTC()
		require.NoError(t, store.SaveNote(ctx, model.Note{ID: "n1", OwnerID: "alice", Title: "t", CreatedAt: now, UpdatedAt: now}))

		err := store.WithinTransaction(ctx, func(ctx context.Context, repo Repository) error {
			if _, err := repo.GetNote(ctx, "n1"); err != nil {
				return err
			}

			// A second transaction must be able to lock the row the first one only read.
			lockCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			return store.WithinTransaction(lockCtx, func(ctx context.Context, other Repository) error {
				_, err := other.GetNoteForUpdate(ctx, "n1")
				return err
			})
		})
		require.NoError(t, err)
	})

	t.Run("locked row blocks a second writer", func(t *testing.T) {
		store := newPostgresStore(t, dsn, source)
		ctx := context.Background()
		require.NoError(t, store.CreateUser(ctx, model.User{ID: "alice", Login: "alice"}))
		now := time.Now().UTC()
		require.NoError(t, store.SaveNote(ctx, model.Note{ID: "n1", OwnerID: "alice", Title: "t", CreatedAt: now, UpdatedAt: now}))

		err := store.WithinTransaction(ctx, func(ctx context.Context, repo Repository) error {
			if _, err := repo.GetNoteForUpdate(ctx, "n1"); err != nil {
				return err
			}

			lockCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
			defer cancel()
			err := store.WithinTransaction(lockCtx, func(ctx context.Context, other Repository) error {
				_, err := other.GetNoteForUpdate(ctx, "n1")
				return err
			})
			require.Error(t, err)
			return nil
		})
		require.NoError(t, err)
	})
}

package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kotche/notes/infrastructure/tracing"
	"github.com/kotche/notes/internal/model"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Masterminds/squirrel"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	constraintCollaborationUserFK = "collaborations_user_id_fkey"
	constraintCollaborationNoteFK = "collaborations_note_id_fkey"
)

var noteColumns = []string{"id", "owner_id", "title", "body", "tags", "created_at", "updated_at"}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DefaultRepository struct {
	db   querier
	pool *sql.DB
	inTx bool
}

func NewDefaultRepository(pg *sql.DB) *DefaultRepository {
	return &DefaultRepository{db: pg, pool: pg}
}

func (d *DefaultRepository) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo Repository) error) (err error) {
	if d.inTx {
		return fn(ctx, d)
	}

	tx, err := d.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, &DefaultRepository{db: tx, pool: d.pool, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (d *DefaultRepository) Close() error {
	return d.pool.Close()
}

func (d *DefaultRepository) UserExists(ctx context.Context, userID model.UserID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`
	err := d.db.QueryRowContext(ctx, query, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to get user '%s' exists: %w", userID, err)
	}
	return exists, nil
}

func (d *DefaultRepository) CreateUser(ctx context.Context, user model.User) error {
	query := `
		INSERT INTO users (id, login, telegram_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := d.db.ExecContext(ctx, query, user.ID, user.Login, user.TelegramID); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (d *DefaultRepository) GetUser(ctx context.Context, userID model.UserID) (*model.User, error) {
	user := &model.User{}
	var telegramID sql.NullInt64
	query := `SELECT id, login, telegram_id, created_at FROM users WHERE id = $1`
	err := d.db.QueryRowContext(ctx, query, userID).Scan(&user.ID, &user.Login, &telegramID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user '%s': %w", userID, err)
	}
	if telegramID.Valid {
		user.TelegramID = &telegramID.Int64
	}
	return user, nil
}

func (d *DefaultRepository) SetTelegramID(ctx context.Context, userID model.UserID, chatID int64) error {
	res, err := d.db.ExecContext(ctx, `UPDATE users SET telegram_id = $1 WHERE id = $2`, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to set telegram id for user '%s': %w", userID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return model.ErrUserNotFound
	}

	return nil
}

func (d *DefaultRepository) GetNote(ctx context.Context, noteID model.NoteID) (*model.Note, error) {
	ctx, span := tracing.StartSpan(ctx, "GetNote_repo", attribute.String("note.id", string(noteID)))
	defer span.End()

	return d.getNote(ctx, noteID, false)
}

func (d *DefaultRepository) GetNoteForUpdate(ctx context.Context, noteID model.NoteID) (*model.Note, error) {
	ctx, span := tracing.StartSpan(ctx, "GetNoteForUpdate_repo", attribute.String("note.id", string(noteID)))
	defer span.End()

	return d.getNote(ctx, noteID, d.inTx)
}

func (d *DefaultRepository) getNote(ctx context.Context, noteID model.NoteID, lock bool) (*model.Note, error) {
	queryBuilder := squirrel.
		Select(noteColumns...).
		From("notes").
		Where(squirrel.Eq{"id": noteID}).
		PlaceholderFormat(squirrel.Dollar)

	if lock {
		queryBuilder = queryBuilder.Suffix("FOR UPDATE")
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	note, err := scanNote(d.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to get note '%s': %w", noteID, err)
	}
	return note, nil
}

func (d *DefaultRepository) SaveNote(ctx context.Context, note model.Note) error {
	ctx, span := tracing.StartSpan(ctx, "SaveNote_repo", attribute.String("note.id", string(note.ID)))
	defer span.End()

	tags := note.Tags
	if tags == nil {
		tags = []string{}
	}

	query, args, err := squirrel.
		Insert("notes").
		Columns(noteColumns...).
		Values(note.ID, note.OwnerID, note.Title, note.Body, pq.Array(tags), note.CreatedAt, note.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			tags = EXCLUDED.tags,
			updated_at = EXCLUDED.updated_at`).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err = d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save note '%s': %w", note.ID, err)
	}

	return nil
}

// DeleteNote relies on ON DELETE CASCADE so the note and its collaborations go in one statement.
func (d *DefaultRepository) DeleteNote(ctx context.Context, noteID model.NoteID) error {
	ctx, span := tracing.StartSpan(ctx, "DeleteNote_repo", attribute.String("note.id", string(noteID)))
	defer span.End()

	res, err := d.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, noteID)
	if err != nil {
		return fmt.Errorf("failed to delete note '%s': %w", noteID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return model.ErrNoteNotFound
	}

	return nil
}

func (d *DefaultRepository) ListAccessibleNotes(ctx context.Context, userID model.UserID) ([]model.Note, error) {
	ctx, span := tracing.StartSpan(ctx, "ListAccessibleNotes_repo", attribute.String("user.id", string(userID)))
	defer span.End()

	query, args, err := squirrel.
		Select(noteColumns...).
		From("notes").
		Where(squirrel.Or{
			squirrel.Eq{"owner_id": userID},
			squirrel.Expr("EXISTS (SELECT 1 FROM collaborations c WHERE c.note_id = notes.id AND c.user_id = ?)", userID),
		}).
		OrderBy("created_at", "id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []model.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, *note)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}

	return notes, nil
}

// CreateCollaboration leans on the unique (note_id, user_id) constraint so concurrent
// grants for the same pair cannot both succeed.
func (d *DefaultRepository) CreateCollaboration(ctx context.Context, collaboration model.Collaboration) error {
	ctx, span := tracing.StartSpan(ctx, "CreateCollaboration_repo",
		attribute.String("note.id", string(collaboration.NoteID)),
		attribute.String("user.id", string(collaboration.UserID)),
	)
	defer span.End()

	query := `
		INSERT INTO collaborations (id, note_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := d.db.ExecContext(ctx, query,
		collaboration.ID, collaboration.NoteID, collaboration.UserID, collaboration.CreatedAt)
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pgUniqueViolation:
			return model.ErrCollaborationExists
		case pqErr.Code == pgForeignKeyViolation && pqErr.Constraint == constraintCollaborationUserFK:
			return model.ErrInvalidGrantee
		case pqErr.Code == pgForeignKeyViolation && pqErr.Constraint == constraintCollaborationNoteFK:
			return model.ErrNoteNotFound
		}
	}

	return fmt.Errorf("failed to create collaboration for note '%s': %w", collaboration.NoteID, err)
}

func (d *DefaultRepository) DeleteCollaboration(ctx context.Context, noteID model.NoteID, userID model.UserID) error {
	ctx, span := tracing.StartSpan(ctx, "DeleteCollaboration_repo",
		attribute.String("note.id", string(noteID)),
		attribute.String("user.id", string(userID)),
	)
	defer span.End()

	query := `DELETE FROM collaborations WHERE note_id = $1 AND user_id = $2`
	res, err := d.db.ExecContext(ctx, query, noteID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete collaboration for note '%s': %w", noteID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return model.ErrCollaborationNotFound
	}

	return nil
}

func (d *DefaultRepository) CollaborationExists(ctx context.Context, noteID model.NoteID, userID model.UserID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM collaborations WHERE note_id = $1 AND user_id = $2)`
	err := d.db.QueryRowContext(ctx, query, noteID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to get collaboration on note '%s' for user '%s' exists: %w", noteID, userID, err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*model.Note, error) {
	note := &model.Note{}
	var tags pq.StringArray
	err := row.Scan(&note.ID, &note.OwnerID, &note.Title, &note.Body, &tags, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return nil, err
	}
	note.Tags = []string(tags)
	return note, nil
}

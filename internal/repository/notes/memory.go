package notes

import (
	"context"
	"sort"
	"sync"

	"github.com/kotche/notes/internal/model"
)

type collaborationKey struct {
	noteID model.NoteID
	userID model.UserID
}

type memoryState struct {
	users          map[model.UserID]model.User
	notes          map[model.NoteID]model.Note
	collaborations map[collaborationKey]model.Collaboration
}

// MemoryRepository is a Store kept in process memory, used for local runs and tests.
// Transactions hold the store lock for their whole duration and restore a snapshot on failure.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memoryState
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: &memoryState{
			users:          make(map[model.UserID]model.User),
			notes:          make(map[model.NoteID]model.Note),
			collaborations: make(map[collaborationKey]model.Collaboration),
		},
	}
}

func (m *MemoryRepository) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	err := fn(ctx, &memoryTx{state: m.state})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *MemoryRepository) Close() error {
	return nil
}

func (m *MemoryRepository) UserExists(ctx context.Context, userID model.UserID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.userExists(ctx, userID)
}

func (m *MemoryRepository) CreateUser(ctx context.Context, user model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createUser(ctx, user)
}

func (m *MemoryRepository) GetUser(ctx context.Context, userID model.UserID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getUser(ctx, userID)
}

func (m *MemoryRepository) SetTelegramID(ctx context.Context, userID model.UserID, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.setTelegramID(ctx, userID, chatID)
}

// GetNoteForUpdate needs no row lock here: transactions already hold the store lock.
func (m *MemoryRepository) GetNoteForUpdate(ctx context.Context, noteID model.NoteID) (*model.Note, error) {
	return m.GetNote(ctx, noteID)
}

func (m *MemoryRepository) GetNote(ctx context.Context, noteID model.NoteID) (*model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getNote(ctx, noteID)
}

func (m *MemoryRepository) SaveNote(ctx context.Context, note model.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.saveNote(ctx, note)
}

func (m *MemoryRepository) DeleteNote(ctx context.Context, noteID model.NoteID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.deleteNote(ctx, noteID)
}

func (m *MemoryRepository) ListAccessibleNotes(ctx context.Context, userID model.UserID) ([]model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.listAccessibleNotes(ctx, userID)
}

func (m *MemoryRepository) CreateCollaboration(ctx context.Context, collaboration model.Collaboration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createCollaboration(ctx, collaboration)
}

func (m *MemoryRepository) DeleteCollaboration(ctx context.Context, noteID model.NoteID, userID model.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.deleteCollaboration(ctx, noteID, userID)
}

func (m *MemoryRepository) CollaborationExists(ctx context.Context, noteID model.NoteID, userID model.UserID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.collaborationExists(ctx, noteID, userID)
}

// memoryTx is the repository handed to a transaction; the caller already holds the store lock.
type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) UserExists(ctx context.Context, userID model.UserID) (bool, error) {
	return t.state.userExists(ctx, userID)
}

func (t *memoryTx) CreateUser(ctx context.Context, user model.User) error {
	return t.state.createUser(ctx, user)
}

func (t *memoryTx) GetUser(ctx context.Context, userID model.UserID) (*model.User, error) {
	return t.state.getUser(ctx, userID)
}

func (t *memoryTx) SetTelegramID(ctx context.Context, userID model.UserID, chatID int64) error {
	return t.state.setTelegramID(ctx, userID, chatID)
}

func (t *memoryTx) GetNoteForUpdate(ctx context.Context, noteID model.NoteID) (*model.Note, error) {
	return t.state.getNote(ctx, noteID)
}

func (t *memoryTx) GetNote(ctx context.Context, noteID model.NoteID) (*model.Note, error) {
	return t.state.getNote(ctx, noteID)
}

func (t *memoryTx) SaveNote(ctx context.Context, note model.Note) error {
	return t.state.saveNote(ctx, note)
}

func (t *memoryTx) DeleteNote(ctx context.Context, noteID model.NoteID) error {
	return t.state.deleteNote(ctx, noteID)
}

func (t *memoryTx) ListAccessibleNotes(ctx context.Context, userID model.UserID) ([]model.Note, error) {
	return t.state.listAccessibleNotes(ctx, userID)
}

func (t *memoryTx) CreateCollaboration(ctx context.Context, collaboration model.Collaboration) error {
	return t.state.createCollaboration(ctx, collaboration)
}

func (t *memoryTx) DeleteCollaboration(ctx context.Context, noteID model.NoteID, userID model.UserID) error {
	return t.state.deleteCollaboration(ctx, noteID, userID)
}

func (t *memoryTx) CollaborationExists(ctx context.Context, noteID model.NoteID, userID model.UserID) (bool, error) {
	return t.state.collaborationExists(ctx, noteID, userID)
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		users:          make(map[model.UserID]model.User, len(s.users)),
		notes:          make(map[model.NoteID]model.Note, len(s.notes)),
		collaborations: make(map[collaborationKey]model.Collaboration, len(s.collaborations)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.notes {
		c.notes[k] = copyNote(v)
	}
	for k, v := range s.collaborations {
		c.collaborations[k] = v
	}
	return c
}

func (s *memoryState) userExists(ctx context.Context, userID model.UserID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := s.users[userID]
	return ok, nil
}

func (s *memoryState) createUser(ctx context.Context, user model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.users[user.ID]; !ok {
		s.users[user.ID] = user
	}
	return nil
}

func (s *memoryState) getUser(ctx context.Context, userID model.UserID) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user, ok := s.users[userID]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	if user.TelegramID != nil {
		chatID := *user.TelegramID
		user.TelegramID = &chatID
	}
	return &user, nil
}

func (s *memoryState) setTelegramID(ctx context.Context, userID model.UserID, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	user, ok := s.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	user.TelegramID = &chatID
	s.users[userID] = user
	return nil
}

func (s *memoryState) getNote(ctx context.Context, noteID model.NoteID) (*model.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	note, ok := s.notes[noteID]
	if !ok {
		return nil, model.ErrNoteNotFound
	}
	note = copyNote(note)
	return &note, nil
}

func (s *memoryState) saveNote(ctx context.Context, note model.Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if existing, ok := s.notes[note.ID]; ok {
		note.OwnerID = existing.OwnerID
		note.CreatedAt = existing.CreatedAt
	}
	s.notes[note.ID] = copyNote(note)
	return nil
}

func (s *memoryState) deleteNote(ctx context.Context, noteID model.NoteID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.notes[noteID]; !ok {
		return model.ErrNoteNotFound
	}
	delete(s.notes, noteID)
	for key := range s.collaborations {
		if key.noteID == noteID {
			delete(s.collaborations, key)
		}
	}
	return nil
}

func (s *memoryState) listAccessibleNotes(ctx context.Context, userID model.UserID) ([]model.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var notes []model.Note
	for id, note := range s.notes {
		_, shared := s.collaborations[collaborationKey{noteID: id, userID: userID}]
		if note.OwnerID == userID || shared {
			notes = append(notes, copyNote(note))
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].ID < notes[j].ID
		}
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
	return notes, nil
}

func (s *memoryState) createCollaboration(ctx context.Context, collaboration model.Collaboration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.notes[collaboration.NoteID]; !ok {
		return model.ErrNoteNotFound
	}
	if _, ok := s.users[collaboration.UserID]; !ok {
		return model.ErrInvalidGrantee
	}
	key := collaborationKey{noteID: collaboration.NoteID, userID: collaboration.UserID}
	if _, ok := s.collaborations[key]; ok {
		return model.ErrCollaborationExists
	}
	s.collaborations[key] = collaboration
	return nil
}

func (s *memoryState) deleteCollaboration(ctx context.Context, noteID model.NoteID, userID model.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := collaborationKey{noteID: noteID, userID: userID}
	if _, ok := s.collaborations[key]; !ok {
		return model.ErrCollaborationNotFound
	}
	delete(s.collaborations, key)
	return nil
}

func (s *memoryState) collaborationExists(ctx context.Context, noteID model.NoteID, userID model.UserID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := s.collaborations[collaborationKey{noteID: noteID, userID: userID}]
	return ok, nil
}

func copyNote(note model.Note) model.Note {
	if note.Tags != nil {
		note.Tags = append(make([]string, 0, len(note.Tags)), note.Tags...)
	}
	return note
}

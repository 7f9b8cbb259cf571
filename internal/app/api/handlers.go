package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kotche/notes/internal/model"
	"github.com/kotche/notes/internal/service/notes"
)

type (
	notePayload struct {
		Title string   `json:"title"`
		Body  string   `json:"body"`
		Tags  []string `json:"tags"`
	}

	telegramPayload struct {
		ChatID int64 `json:"chatId"`
	}

	collaborationPayload struct {
		NoteID model.NoteID `json:"noteId"`
		UserID model.UserID `json:"userId"`
	}

	noteView struct {
		ID           model.NoteID `json:"id"`
		Owner        model.UserID `json:"owner"`
		Title        string       `json:"title"`
		Body         string       `json:"body"`
		Tags         []string     `json:"tags"`
		CreatedAt    time.Time    `json:"createdAt"`
		UpdatedAt    time.Time    `json:"updatedAt"`
		Capabilities []string     `json:"capabilities,omitempty"`
	}
)

func toView(note model.Note) noteView {
	return noteView{
		ID:        note.ID,
		Owner:     note.OwnerID,
		Title:     note.Title,
		Body:      note.Body,
		Tags:      note.Tags,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}

func (a *API) postNote(w http.ResponseWriter, r *http.Request) {
	var payload notePayload
	if !a.decode(w, r, &payload) {
		return
	}
	if payload.Title == "" {
		a.fail(w, http.StatusBadRequest, "title is required")
		return
	}

	note, err := a.notes.Create(r.Context(), identity(r), notes.Content(payload))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.success(w, http.StatusCreated, "note added", map[string]any{"noteId": note.ID})
}

func (a *API) listNotes(w http.ResponseWriter, r *http.Request) {
	list, err := a.notes.List(r.Context(), identity(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	views := make([]noteView, 0, len(list))
	for _, note := range list {
		views = append(views, toView(note))
	}

	a.success(w, http.StatusOK, "", map[string]any{"notes": views})
}

func (a *API) getNote(w http.ResponseWriter, r *http.Request) {
	note, caps, err := a.notes.Get(r.Context(), identity(r), model.NoteID(chi.URLParam(r, "id")))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	view := toView(*note)
	view.Capabilities = caps.Strings()
	a.success(w, http.StatusOK, "", map[string]any{"note": view})
}

func (a *API) putNote(w http.ResponseWriter, r *http.Request) {
	var payload notePayload
	if !a.decode(w, r, &payload) {
		return
	}
	if payload.Title == "" {
		a.fail(w, http.StatusBadRequest, "title is required")
		return
	}

	_, err := a.notes.Update(r.Context(), identity(r), model.NoteID(chi.URLParam(r, "id")), notes.Content(payload))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.success(w, http.StatusOK, "note updated", nil)
}

func (a *API) deleteNote(w http.ResponseWriter, r *http.Request) {
	if err := a.notes.Delete(r.Context(), identity(r), model.NoteID(chi.URLParam(r, "id"))); err != nil {
		a.writeError(w, r, err)
		return
	}

	a.success(w, http.StatusOK, "note deleted", nil)
}

func (a *API) decodeCollaboration(w http.ResponseWriter, r *http.Request) (collaborationPayload, bool) {
	var payload collaborationPayload
	if !a.decode(w, r, &payload) {
		return payload, false
	}
	if payload.NoteID == "" || payload.UserID == "" {
		a.fail(w, http.StatusBadRequest, "noteId and userId are required")
		return payload, false
	}
	return payload, true
}

func (a *API) postCollaboration(w http.ResponseWriter, r *http.Request) {
	payload, ok := a.decodeCollaboration(w, r)
	if !ok {
		return
	}

	id, err := a.notes.AddCollaborator(r.Context(), identity(r), payload.NoteID, payload.UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.success(w, http.StatusCreated, "collaboration added", map[string]any{"collaborationId": id})
}

func (a *API) deleteCollaboration(w http.ResponseWriter, r *http.Request) {
	payload, ok := a.decodeCollaboration(w, r)
	if !ok {
		return
	}

	if err := a.notes.RemoveCollaborator(r.Context(), identity(r), payload.NoteID, payload.UserID); err != nil {
		a.writeError(w, r, err)
		return
	}

	a.success(w, http.StatusOK, "collaboration removed", nil)
}

// putTelegram links the chat the export bot reports on /start to the caller.
func (a *API) putTelegram(w http.ResponseWriter, r *http.Request) {
	var payload telegramPayload
	if !a.decode(w, r, &payload) {
		return
	}

	if err := a.notes.LinkTelegram(r.Context(), identity(r), payload.ChatID); err != nil {
		a.writeError(w, r, err)
		return
	}

	a.success(w, http.StatusOK, "telegram chat linked", nil)
}

// postExport always exports the caller's own notes; the request body is not needed.
func (a *API) postExport(w http.ResponseWriter, r *http.Request) {
	caller := identity(r)

	id, err := a.exports.RequestExport(r.Context(), caller, caller)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.success(w, http.StatusCreated, "export queued", map[string]any{"correlationId": id})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid request payload")
		return false
	}
	return true
}

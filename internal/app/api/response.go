package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kotche/notes/internal/model"
	"go.uber.org/zap"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"

	messageServerError = "sorry, something went wrong on our side"
)

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (a *API) success(w http.ResponseWriter, code int, message string, data any) {
	a.write(w, code, envelope{Status: statusSuccess, Message: message, Data: data})
}

func (a *API) fail(w http.ResponseWriter, code int, message string) {
	a.write(w, code, envelope{Status: statusFail, Message: message})
}

// writeError maps domain errors to client-visible responses. Messages never carry
// internal error text; unexpected failures are logged in full and answered generically.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrNoteNotFound):
		a.fail(w, http.StatusNotFound, "note not found")
	case errors.Is(err, model.ErrCollaborationNotFound):
		a.fail(w, http.StatusNotFound, "collaboration not found")
	case errors.Is(err, model.ErrForbidden):
		a.fail(w, http.StatusForbidden, "you are not allowed to perform this action")
	case errors.Is(err, model.ErrCollaborationExists):
		a.fail(w, http.StatusConflict, "collaboration already exists")
	case errors.Is(err, model.ErrInvalidGrantee):
		a.fail(w, http.StatusBadRequest, "user not found")
	case errors.Is(err, model.ErrInvalidChatID):
		a.fail(w, http.StatusBadRequest, "chatId must be a telegram chat id")
	case errors.Is(err, model.ErrChannelUnavailable):
		a.logger.Error("export channel unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		a.write(w, http.StatusServiceUnavailable, envelope{Status: statusError, Message: "export service is temporarily unavailable"})
	default:
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		a.write(w, http.StatusInternalServerError, envelope{Status: statusError, Message: messageServerError})
	}
}

func (a *API) write(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Warn("failed to write response", zap.Error(err))
	}
}

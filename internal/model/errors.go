package model

import "errors"

var (
	ErrNoteNotFound          = errors.New("note not found")
	ErrForbidden             = errors.New("forbidden")
	ErrCollaborationExists   = errors.New("collaboration already exists")
	ErrCollaborationNotFound = errors.New("collaboration not found")
	ErrInvalidGrantee        = errors.New("grantee is not a known user")
	ErrChannelUnavailable    = errors.New("export channel unavailable")
	ErrUserNotFound          = errors.New("user not found")
	ErrInvalidChatID         = errors.New("invalid telegram chat id")
)

package model

import "time"

type (
	UserID          string
	NoteID          string
	CollaborationID string
	CorrelationID   string
)

type (
	User struct {
		ID         UserID
		Login      string
		TelegramID *int64
		CreatedAt  time.Time
	}

	Note struct {
		ID        NoteID
		OwnerID   UserID
		Title     string
		Body      string
		Tags      []string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Collaboration struct {
		ID        CollaborationID
		NoteID    NoteID
		UserID    UserID
		CreatedAt time.Time
	}
)

// ExportJob is the message handed to the export channel. It is never persisted.
type ExportJob struct {
	CorrelationID CorrelationID `json:"correlationId"`
	RequesterID   UserID        `json:"requesterId"`
	TargetUserID  UserID        `json:"targetUserId"`
	RequestedAt   time.Time     `json:"requestedAt"`
}

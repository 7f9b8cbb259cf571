package exporter

import (
	"bytes"
	"context"
	"fmt"

	"github.com/kotche/notes/internal/model"
	"gopkg.in/telebot.v3"
)

type TelegramSender struct {
	bot *telebot.Bot
}

func NewTelegramSender(bot *telebot.Bot) *TelegramSender {
	return &TelegramSender{bot: bot}
}

// Listen answers /start until ctx is cancelled, so users can learn the chat id
// they link through the API.
func (s *TelegramSender) Listen(ctx context.Context) {
	s.bot.Handle("/start", func(c telebot.Context) error {
		return c.Send(startMessage(c.Chat().ID))
	})

	go func() {
		<-ctx.Done()
		s.bot.Stop()
	}()

	s.bot.Start()
}

func startMessage(chatID int64) string {
	return fmt.Sprintf("Your chat id is %d.\n"+
		"Send PUT /users/me/telegram with {\"chatId\": %d} to receive your note exports here.", chatID, chatID)
}

func (s *TelegramSender) SendExport(_ context.Context, chatID int64, job model.ExportJob, document []byte) error {
	file := &telebot.Document{
		File:     telebot.FromReader(bytes.NewReader(document)),
		FileName: fmt.Sprintf("notes-%s.json", job.CorrelationID),
		Caption:  fmt.Sprintf("Notes export %s", job.CorrelationID),
		MIME:     "application/json",
	}

	if _, err := s.bot.Send(&telebot.User{ID: chatID}, file); err != nil {
		return fmt.Errorf("failed to send export to chat %d: %w", chatID, err)
	}
	return nil
}

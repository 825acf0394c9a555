package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"gembot/internal/gate"
	"gembot/internal/queue"
)

func (s *Service) start(b *gotgbot.Bot, ctx *ext.Context) error {
	name := "there"
	if ctx.EffectiveUser != nil && strings.TrimSpace(ctx.EffectiveUser.FirstName) != "" {
		name = ctx.EffectiveUser.FirstName
	}
	text := fmt.Sprintf(
		"Hi, %s! I am an AI assistant. Write to me directly, or in groups mention me (@%s) or reply to one of my messages.",
		name, s.botUsername,
	)
	return s.reply(ctx, b, text)
}

func (s *Service) help(b *gotgbot.Bot, ctx *ext.Context) error {
	text := strings.Join([]string{
		"Commands:",
		"/start - introduction",
		"/status - chat status",
		"/help - this message",
		"",
		"Private chat: every text message is answered.",
		fmt.Sprintf("Groups: mention @%s or reply to my messages.", s.botUsername),
	}, "\n")
	return s.reply(ctx, b, text)
}

func (s *Service) status(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx.EffectiveChat == nil {
		return nil
	}
	return s.reply(ctx, b, s.statusText(ctx.EffectiveChat.Id, ctx.EffectiveChat.Type))
}

func (s *Service) statusText(chatID int64, chatType string) string {
	persistence := "disabled"
	turns := "n/a"
	if s.journal.Enabled() {
		persistence = "enabled"
		if n, ok := s.journal.TurnCount(context.Background(), chatID); ok {
			turns = fmt.Sprintf("%d", n)
		} else {
			turns = "unavailable"
		}
	}

	return strings.Join([]string{
		"Chat status",
		fmt.Sprintf("chat_id: %d", chatID),
		fmt.Sprintf("chat_type: %s", chatType),
		fmt.Sprintf("persistence: %s", persistence),
		fmt.Sprintf("stored_turns: %s", turns),
	}, "\n")
}

// onText hands every non-command text message to the intake queue and
// returns immediately; the webhook acknowledges regardless of what the
// worker later decides. No reply is sent from here.
func (s *Service) onText(b *gotgbot.Bot, ctx *ext.Context) error {
	msg := ctx.EffectiveMessage
	if msg == nil || ctx.EffectiveChat == nil {
		return nil
	}
	text := strings.TrimSpace(msg.GetText())
	if text == "" {
		return nil
	}

	s.ensureChat(context.Background(), msg)

	job := queue.IntakeJob{
		ChatID:        ctx.EffectiveChat.Id,
		ChatType:      ctx.EffectiveChat.Type,
		UserID:        userID(ctx),
		MessageID:     msg.MessageId,
		Text:          text,
		Entities:      mentionEntities(msg),
		ReplyToUserID: replyToUserID(msg),
	}
	if _, err := s.queue.Enqueue(context.Background(), job); err != nil {
		s.logger.Error().Err(err).Int64("chat_id", job.ChatID).Msg("failed to enqueue intake job")
		return nil
	}
	s.metrics.EnqueuedJobs.Inc()
	return nil
}

func mentionEntities(msg *gotgbot.Message) []gate.Entity {
	if len(msg.Entities) == 0 {
		return nil
	}
	out := make([]gate.Entity, 0, len(msg.Entities))
	for _, e := range msg.Entities {
		out = append(out, gate.Entity{Type: e.Type, Offset: e.Offset, Length: e.Length})
	}
	return out
}

func replyToUserID(msg *gotgbot.Message) int64 {
	if msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil {
		return 0
	}
	return msg.ReplyToMessage.From.Id
}

func userID(ctx *ext.Context) int64 {
	if ctx.EffectiveUser == nil {
		return 0
	}
	return ctx.EffectiveUser.Id
}

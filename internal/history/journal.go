// Package history persists conversation turns and assembles prompt
// context. Every operation degrades to a no-op or an empty result when
// the store is disabled or failing; persistence never blocks a reply.
package history

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"gembot/internal/gemini"
	"gembot/internal/metrics"
	"gembot/internal/storage"
)

const (
	SenderUser = "user"
	SenderBot  = "bot"

	defaultWindow = 10
)

type Journal struct {
	store   *storage.Store
	logger  zerolog.Logger
	metrics *metrics.Metrics
	window  int
}

type Config struct {
	// Store may be nil when persistence is disabled.
	Store   *storage.Store
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Window  int
}

func New(cfg Config) *Journal {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.Window < 1 {
		cfg.Window = defaultWindow
	}
	return &Journal{
		store:   cfg.Store,
		logger:  cfg.Logger,
		metrics: m,
		window:  cfg.Window,
	}
}

func (j *Journal) Enabled() bool {
	return j != nil && j.store != nil
}

// Context returns up to the window's worth of recent turns for a chat,
// oldest first, mapped to generation roles. A missing store, an empty
// chat, and a read failure all yield an empty context.
func (j *Journal) Context(ctx context.Context, chatID int64) []gemini.Content {
	if !j.Enabled() {
		return nil
	}
	turns, err := j.store.RecentTurns(ctx, chatID, j.window)
	if err != nil {
		j.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to load history")
		return nil
	}

	out := make([]gemini.Content, 0, len(turns))
	for _, t := range turns {
		role, err := roleFor(t.Sender)
		if err != nil {
			j.logger.Error().Err(err).Int64("chat_id", chatID).Int64("turn_id", t.ID).Msg("skipping turn with unrecognized sender")
			continue
		}
		out = append(out, gemini.Content{Role: role, Text: t.Text})
	}
	return out
}

// RecordExchange appends the user turn and the bot turn as two
// independent writes. If the first append succeeds and the second
// fails, the chat is left with an unpaired user turn; that window is
// accepted, logged, and never rolled back or retried.
func (j *Journal) RecordExchange(ctx context.Context, chatID int64, userText, botText string) {
	if !j.Enabled() {
		return
	}
	if err := j.store.AppendTurn(ctx, chatID, SenderUser, userText); err != nil {
		j.metrics.HistoryAppendFailures.Inc()
		j.logger.Error().Err(err).Int64("chat_id", chatID).Str("sender", SenderUser).Msg("failed to append turn")
	}
	if err := j.store.AppendTurn(ctx, chatID, SenderBot, botText); err != nil {
		j.metrics.HistoryAppendFailures.Inc()
		j.logger.Error().Err(err).Int64("chat_id", chatID).Str("sender", SenderBot).Msg("failed to append turn")
	}
}

// LogInbound records an inbound message in the audit log. Fire and
// forget; a failure has no effect on the rest of the pipeline.
func (j *Journal) LogInbound(ctx context.Context, rec storage.InboxRecord) {
	if !j.Enabled() {
		return
	}
	if err := j.store.LogInbound(ctx, rec); err != nil {
		j.logger.Error().Err(err).Int64("chat_id", rec.ChatID).Msg("failed to write inbox record")
	}
}

// TurnCount reports how many turns are stored for a chat. The second
// return is false when persistence is disabled or the read failed.
func (j *Journal) TurnCount(ctx context.Context, chatID int64) (int64, bool) {
	if !j.Enabled() {
		return 0, false
	}
	n, err := j.store.CountTurns(ctx, chatID)
	if err != nil {
		j.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to count turns")
		return 0, false
	}
	return n, true
}

// roleFor is exhaustive over the stored sender values. An unknown
// sender is an error, never silently mapped to the model role.
func roleFor(sender string) (string, error) {
	switch sender {
	case SenderUser:
		return gemini.RoleUser, nil
	case SenderBot:
		return gemini.RoleModel, nil
	default:
		return "", fmt.Errorf("unrecognized sender %q", sender)
	}
}

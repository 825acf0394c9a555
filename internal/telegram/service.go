package telegram

import (
	"context"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/message"
	"github.com/rs/zerolog"

	"gembot/internal/history"
	"gembot/internal/metrics"
	"gembot/internal/queue"
	"gembot/internal/storage"
)

type Service struct {
	store       *storage.Store
	journal     *history.Journal
	queue       *queue.StreamQueue
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	botUsername string
}

type Config struct {
	// Store may be nil when persistence is disabled.
	Store       *storage.Store
	Journal     *history.Journal
	Queue       *queue.StreamQueue
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	BotUsername string
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Service{
		store:       cfg.Store,
		journal:     cfg.Journal,
		queue:       cfg.Queue,
		logger:      cfg.Logger,
		metrics:     m,
		botUsername: cfg.BotUsername,
	}
}

func (s *Service) Register(d *ext.Dispatcher) {
	d.AddHandler(handlers.NewCommand("start", s.start))
	d.AddHandler(handlers.NewCommand("help", s.help))
	d.AddHandler(handlers.NewCommand("status", s.status))
	d.AddHandler(handlers.NewMessage(func(msg *gotgbot.Message) bool {
		return message.Text(msg) && !strings.HasPrefix(msg.GetText(), "/")
	}, s.onText))
}

func (s *Service) reply(ctx *ext.Context, b *gotgbot.Bot, text string) error {
	if ctx.EffectiveChat == nil {
		return nil
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, text, nil)
	return err
}

func (s *Service) ensureChat(ctx context.Context, msg *gotgbot.Message) {
	if s.store == nil || msg == nil {
		return
	}
	_ = s.store.EnsureChat(ctx, msg.Chat.Id, msg.Chat.Type, msg.Chat.Title)
}

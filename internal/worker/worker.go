package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/rs/zerolog"

	"gembot/internal/gate"
	"gembot/internal/gemini"
	"gembot/internal/history"
	"gembot/internal/metrics"
	"gembot/internal/queue"
	"gembot/internal/storage"
)

// apologyText is the only thing a user ever sees of a backend failure.
const apologyText = "Sorry, I'm having trouble reaching the language model right now. Please try again later."

// Sender delivers outbound chat messages. *gotgbot.Bot satisfies it.
type Sender interface {
	SendMessageWithContext(ctx context.Context, chatId int64, text string, opts *gotgbot.SendMessageOpts) (*gotgbot.Message, error)
}

type Worker struct {
	bot      Sender
	journal  *history.Journal
	gen      *gemini.Client
	queue    *queue.StreamQueue
	identity gate.Identity
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

type Config struct {
	Bot      Sender
	Journal  *history.Journal
	Gen      *gemini.Client
	Queue    *queue.StreamQueue
	Identity gate.Identity
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Worker{
		bot:      cfg.Bot,
		journal:  cfg.Journal,
		gen:      cfg.Gen,
		queue:    cfg.Queue,
		identity: cfg.Identity,
		logger:   cfg.Logger,
		metrics:  m,
	}
}

func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		messages, err := w.queue.Read(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read queue")
			time.Sleep(1 * time.Second)
			continue
		}
		if len(messages) == 0 {
			continue
		}

		for _, msg := range messages {
			err := w.processJob(ctx, msg.Job)
			if err == nil {
				w.metrics.ProcessedJobs.Inc()
			} else {
				// Terminal: every external call is attempted at most
				// once, so a failed job is never retried.
				w.metrics.FailedJobs.Inc()
				log.Error().Err(err).Str("job_id", msg.Job.JobID).Int64("chat_id", msg.Job.ChatID).Msg("job failed")
			}
			if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
				log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack message")
			}
		}
	}
}

// processJob walks one message through the intake pipeline: gate, inbox
// log, context assembly, generation, turn recording, reply. Persistence
// steps degrade on failure; a generation failure is terminal and the
// user gets the fixed apology instead of a reply.
func (w *Worker) processJob(ctx context.Context, job queue.IntakeJob) error {
	msg := gate.Message{
		ChatType:      job.ChatType,
		Text:          job.Text,
		Entities:      job.Entities,
		ReplyToUserID: job.ReplyToUserID,
	}
	if !gate.ShouldRespond(msg, w.identity) {
		w.metrics.IgnoredMessages.Inc()
		return nil
	}

	text := job.Text
	if job.ChatType != gate.ChatTypePrivate {
		text = gate.StripMention(text, w.identity.Username)
	}

	w.logger.Info().Int64("chat_id", job.ChatID).Int64("user_id", job.UserID).Msg("handling message")

	w.journal.LogInbound(ctx, storage.InboxRecord{
		UserID:    job.UserID,
		ChatID:    job.ChatID,
		MessageID: job.MessageID,
		Text:      text,
	})

	prior := w.journal.Context(ctx, job.ChatID)

	reply, err := w.gen.Generate(ctx, prior, text)
	if err != nil {
		// The raw backend error never reaches the user; no turns are
		// recorded for a failed exchange.
		w.metrics.GenerationFailures.Inc()
		if sendErr := w.send(ctx, job.ChatID, job.MessageID, apologyText); sendErr != nil {
			w.logger.Error().Err(sendErr).Int64("chat_id", job.ChatID).Msg("failed to send apology")
		}
		return fmt.Errorf("generate reply: %w", err)
	}

	w.journal.RecordExchange(ctx, job.ChatID, text, reply)

	if err := w.send(ctx, job.ChatID, job.MessageID, reply); err != nil {
		return fmt.Errorf("send telegram reply: %w", err)
	}
	return nil
}

func (w *Worker) send(ctx context.Context, chatID, replyTo int64, text string) error {
	opts := &gotgbot.SendMessageOpts{}
	if replyTo > 0 {
		opts.ReplyParameters = &gotgbot.ReplyParameters{MessageId: replyTo}
	}
	_, err := w.bot.SendMessageWithContext(ctx, chatID, text, opts)
	return err
}

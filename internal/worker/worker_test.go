package worker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/rs/zerolog"

	"gembot/internal/gate"
	"gembot/internal/gemini"
	"gembot/internal/history"
	"gembot/internal/queue"
	"gembot/internal/storage"
)

type sentMessage struct {
	chatID  int64
	text    string
	replyTo int64
}

type fakeSender struct {
	sent []sentMessage
}

func (f *fakeSender) SendMessageWithContext(_ context.Context, chatID int64, text string, opts *gotgbot.SendMessageOpts) (*gotgbot.Message, error) {
	var replyTo int64
	if opts != nil && opts.ReplyParameters != nil {
		replyTo = opts.ReplyParameters.MessageId
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, replyTo: replyTo})
	return &gotgbot.Message{}, nil
}

type pipeline struct {
	worker *Worker
	sender *fakeSender
	store  *storage.Store
	calls  *atomic.Int64
}

// newTestPipeline wires a worker against a sqlite-backed journal, an
// httptest generation backend, and a recording sender. status controls
// the backend's HTTP response; lastBody captures the generate payload.
func newTestPipeline(t *testing.T, status int, lastBody *[]byte) pipeline {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	s, err := storage.Open(context.Background(), "sqlite", dsn, true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if lastBody != nil {
			b, _ := io.ReadAll(r.Body)
			*lastBody = b
		}
		if status != http.StatusOK {
			http.Error(w, "backend down", status)
			return
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"generated reply"}]}}]}`)
	}))
	t.Cleanup(srv.Close)

	sender := &fakeSender{}
	w := New(Config{
		Bot:     sender,
		Journal: history.New(history.Config{Store: s, Logger: zerolog.Nop(), Window: 10}),
		Gen:     gemini.New(gemini.Config{BaseURL: srv.URL, Model: "gemini-test", HTTPClient: srv.Client()}),
		Identity: gate.Identity{
			Username: "gembot",
			UserID:   42,
		},
		Logger: zerolog.Nop(),
	})
	return pipeline{worker: w, sender: sender, store: s, calls: &calls}
}

func countRows(t *testing.T, s *storage.Store, query string, chatID int64) int64 {
	t.Helper()
	var n int64
	if err := s.DB().QueryRow(query, chatID).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func TestProcessJobSuccessRecordsTwoTurnsThenReplies(t *testing.T) {
	p := newTestPipeline(t, http.StatusOK, nil)
	ctx := context.Background()

	job := queue.IntakeJob{
		ChatID:    1,
		ChatType:  gate.ChatTypePrivate,
		UserID:    10,
		MessageID: 100,
		Text:      "Hello",
	}
	if err := p.worker.processJob(ctx, job); err != nil {
		t.Fatalf("process job: %v", err)
	}

	turns, err := p.store.RecentTurns(ctx, 1, 10)
	if err != nil {
		t.Fatalf("recent turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected exactly 2 turns, got %d", len(turns))
	}
	if turns[0].Sender != history.SenderUser || turns[0].Text != "Hello" {
		t.Fatalf("unexpected user turn %+v", turns[0])
	}
	if turns[1].Sender != history.SenderBot || turns[1].Text != "generated reply" {
		t.Fatalf("unexpected bot turn %+v", turns[1])
	}

	if n := countRows(t, p.store, "SELECT COUNT(*) FROM inbox_log WHERE chat_id = ?", 1); n != 1 {
		t.Fatalf("expected 1 inbox row, got %d", n)
	}
	if len(p.sender.sent) != 1 {
		t.Fatalf("expected 1 outbound message, got %d", len(p.sender.sent))
	}
	got := p.sender.sent[0]
	if got.chatID != 1 || got.text != "generated reply" || got.replyTo != 100 {
		t.Fatalf("unexpected reply %+v", got)
	}
}

func TestProcessJobGenerationFailureSendsApologyRecordsNothing(t *testing.T) {
	p := newTestPipeline(t, http.StatusInternalServerError, nil)
	ctx := context.Background()

	job := queue.IntakeJob{
		ChatID:    2,
		ChatType:  gate.ChatTypePrivate,
		UserID:    10,
		MessageID: 200,
		Text:      "Hello",
	}
	if err := p.worker.processJob(ctx, job); err == nil {
		t.Fatal("expected error on generation failure")
	}

	if n := countRows(t, p.store, "SELECT COUNT(*) FROM turns WHERE chat_id = ?", 2); n != 0 {
		t.Fatalf("expected zero turns after failed generation, got %d", n)
	}
	if len(p.sender.sent) != 1 {
		t.Fatalf("expected exactly the apology, got %d messages", len(p.sender.sent))
	}
	if p.sender.sent[0].text != apologyText {
		t.Fatalf("expected fixed apology, got %q", p.sender.sent[0].text)
	}
}

func TestProcessJobGatedOutHasNoSideEffects(t *testing.T) {
	p := newTestPipeline(t, http.StatusOK, nil)
	ctx := context.Background()

	job := queue.IntakeJob{
		ChatID:    3,
		ChatType:  gate.ChatTypeGroup,
		UserID:    10,
		MessageID: 300,
		Text:      "just group chatter",
	}
	if err := p.worker.processJob(ctx, job); err != nil {
		t.Fatalf("process job: %v", err)
	}

	if n := p.calls.Load(); n != 0 {
		t.Fatalf("expected no generation call, got %d", n)
	}
	if n := countRows(t, p.store, "SELECT COUNT(*) FROM inbox_log WHERE chat_id = ?", 3); n != 0 {
		t.Fatalf("expected no inbox row, got %d", n)
	}
	if n := countRows(t, p.store, "SELECT COUNT(*) FROM turns WHERE chat_id = ?", 3); n != 0 {
		t.Fatalf("expected no turns, got %d", n)
	}
	if len(p.sender.sent) != 0 {
		t.Fatalf("expected no reply, got %d messages", len(p.sender.sent))
	}
}

func TestProcessJobStripsMentionBeforeGeneration(t *testing.T) {
	var lastBody []byte
	p := newTestPipeline(t, http.StatusOK, &lastBody)
	ctx := context.Background()

	job := queue.IntakeJob{
		ChatID:    4,
		ChatType:  gate.ChatTypeGroup,
		UserID:    10,
		MessageID: 400,
		Text:      "@gembot What's up",
		Entities:  []gate.Entity{{Type: "mention", Offset: 0, Length: 7}},
	}
	if err := p.worker.processJob(ctx, job); err != nil {
		t.Fatalf("process job: %v", err)
	}

	var payload struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	if err := json.Unmarshal(lastBody, &payload); err != nil {
		t.Fatalf("unmarshal generate payload: %v", err)
	}
	if len(payload.Contents) != 1 || payload.Contents[0].Parts[0].Text != "What's up" {
		t.Fatalf("mention not stripped before generation: %+v", payload.Contents)
	}

	turns, err := p.store.RecentTurns(ctx, 4, 10)
	if err != nil {
		t.Fatalf("recent turns: %v", err)
	}
	if len(turns) != 2 || turns[0].Text != "What's up" {
		t.Fatalf("expected stripped text in stored turn, got %+v", turns)
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("not found")

func (s *Store) EnsureChat(ctx context.Context, chatID int64, chatType, title string) error {
	if chatType == "" {
		chatType = "unknown"
	}
	q := s.sql.Insert("chats").
		Columns("id", "type", "title").
		Values(chatID, chatType, title).
		Suffix("ON CONFLICT(id) DO UPDATE SET type=excluded.type, title=excluded.title")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build ensure chat query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("ensure chat: %w", err)
	}
	return nil
}

// AppendTurn writes one turn with a database-assigned timestamp.
func (s *Store) AppendTurn(ctx context.Context, chatID int64, sender, text string) error {
	q := s.sql.Insert("turns").
		Columns("chat_id", "sender", "text", "created_at").
		Values(chatID, sender, text, nowExpr(s.driver))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build append turn query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// RecentTurns returns at most limit turns for a chat, oldest first.
// Insertion id breaks ties between turns sharing one timestamp.
func (s *Store) RecentTurns(ctx context.Context, chatID int64, limit int) ([]Turn, error) {
	if limit < 1 {
		return nil, nil
	}
	q := s.sql.Select("id", "chat_id", "sender", "text", "created_at").
		From("turns").
		Where(sq.Eq{"chat_id": chatID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent turns query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	out := make([]Turn, 0, limit)
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.ChatID, &t.Sender, &t.Text, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}

	// Query ran newest-first to apply the limit; callers want
	// chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) CountTurns(ctx context.Context, chatID int64) (int64, error) {
	q := s.sql.Select("COUNT(*)").From("turns").Where(sq.Eq{"chat_id": chatID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count turns query: %w", err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}

func (s *Store) LogInbound(ctx context.Context, rec InboxRecord) error {
	q := s.sql.Insert("inbox_log").
		Columns("user_id", "chat_id", "message_id", "text", "created_at").
		Values(rec.UserID, rec.ChatID, rec.MessageID, rec.Text, nowExpr(s.driver))
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build inbox insert query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("insert inbox record: %w", err)
	}
	return nil
}

func nowExpr(driver string) any {
	if driver == "postgres" {
		return sq.Expr("NOW()")
	}
	return sq.Expr("CURRENT_TIMESTAMP")
}

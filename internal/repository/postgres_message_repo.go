package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/fanzone/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したチャットメッセージリポジトリ。
type PostgresMessageRepo struct {
	db DBTX
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db DBTX) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Create はメッセージを保存する。IDとTimestampは呼び出し側で設定済みであること。
func (r *PostgresMessageRepo) Create(ctx context.Context, msg *model.ChatMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, sender, content, created_at) VALUES ($1, $2, $3, $4)`,
		msg.ID, msg.Sender, msg.Content, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// ListRecent は新しい順にlimit件取得し、表示用に古い順へ並べ替えて返す。
func (r *PostgresMessageRepo) ListRecent(ctx context.Context, limit int) ([]*model.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sender, content, created_at
		 FROM chat_messages
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.ChatMessage
	for rows.Next() {
		m := &model.ChatMessage{}
		if err := rows.Scan(&m.ID, &m.Sender, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Count は保存済みメッセージの総数を返す。
func (r *PostgresMessageRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM chat_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chat messages: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)

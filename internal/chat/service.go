// Package chat はチャット投稿の受付と履歴取得を提供する。
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/fanzone/internal/hub"
	"github.com/hitoshi/fanzone/internal/model"
	"github.com/hitoshi/fanzone/internal/repository"
	"github.com/hitoshi/fanzone/internal/security"
)

const (
	// DefaultMaxLength はメッセージ本文の最大文字数（ルーン数）。
	DefaultMaxLength = 500
	// DefaultHistoryLimit は履歴取得の既定件数。
	DefaultHistoryLimit = 50
	// MaxHistoryLimit は履歴取得の上限件数。
	MaxHistoryLimit = 200
)

var (
	// ErrNotJoined はチャットに参加していない接続からの投稿に対して返される。
	ErrNotJoined = errors.New("connection has not joined chat")
	// ErrSenderMismatch は参加時と異なる送信者名での投稿に対して返される。
	ErrSenderMismatch = errors.New("sender does not match joined username")
	// ErrMuted はミュート中の参加者の投稿に対して返される。
	ErrMuted = errors.New("participant is muted")
	// ErrBanned はBAN中の参加者の投稿に対して返される。
	ErrBanned = errors.New("participant is banned")
	// ErrEmptyContent はサニタイズ後に本文が空になった投稿に対して返される。
	ErrEmptyContent = errors.New("message content is empty")
	// ErrContentTooLong は最大文字数を超える投稿に対して返される。
	ErrContentTooLong = errors.New("message content is too long")
)

// Broadcaster はチャット投稿の配信先となるHubの操作。
type Broadcaster interface {
	Participant(connID string) (hub.Participant, bool)
	RecordMessage(connID string)
	PublishMessage(msg model.ChatMessage) error
}

// Config はチャットサービスの設定。
type Config struct {
	MaxLength int              // 未設定の場合はDefaultMaxLength
	Now       func() time.Time // 未設定の場合はtime.Now
}

// Service はチャット投稿を検証・永続化してからHubへ渡す。
// ミュート・BANによる投稿拒否はこのサービスが行う。
type Service struct {
	messages  repository.MessageRepository
	hub       Broadcaster
	sanitizer security.ContentSanitizer
	maxLength int
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	messages repository.MessageRepository,
	broadcaster Broadcaster,
	sanitizer security.ContentSanitizer,
	config Config,
) *Service {
	s := &Service{
		messages:  messages,
		hub:       broadcaster,
		sanitizer: sanitizer,
		maxLength: config.MaxLength,
		now:       config.Now,
	}
	if s.maxLength <= 0 {
		s.maxLength = DefaultMaxLength
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Send は接続connIDからの投稿を受け付ける。
// 参加状態・送信者名・モデレーション状態・本文を検証し、保存後に全接続へ配信する。
func (s *Service) Send(ctx context.Context, connID string, payload hub.MessageSendPayload) (*model.ChatMessage, error) {
	p, ok := s.hub.Participant(connID)
	if !ok {
		return nil, ErrNotJoined
	}
	if strings.TrimSpace(payload.Sender) != p.Username {
		return nil, ErrSenderMismatch
	}
	if p.IsBanned {
		return nil, ErrBanned
	}
	if p.IsMuted {
		return nil, ErrMuted
	}

	content := s.sanitizer.Sanitize(payload.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.maxLength {
		return nil, ErrContentTooLong
	}

	msg := &model.ChatMessage{
		ID:        uuid.NewString(),
		Sender:    p.Username,
		Content:   content,
		Timestamp: s.now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}

	s.hub.RecordMessage(connID)
	if err := s.hub.PublishMessage(*msg); err != nil {
		return nil, fmt.Errorf("メッセージの配信に失敗しました: %w", err)
	}

	slog.Debug("チャットメッセージを配信しました",
		slog.String("message_id", msg.ID),
		slog.String("conn_id", connID),
	)
	return msg, nil
}

// Recent は直近のメッセージを古い順に返す。limitは1以上MaxHistoryLimit以下に丸める。
func (s *Service) Recent(ctx context.Context, limit int) ([]*model.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	msgs, err := s.messages.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("メッセージ履歴の取得に失敗しました: %w", err)
	}
	if msgs == nil {
		msgs = []*model.ChatMessage{}
	}
	return msgs, nil
}

// Count は保存済みメッセージの総数を返す。
func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.messages.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("メッセージ数の取得に失敗しました: %w", err)
	}
	return n, nil
}

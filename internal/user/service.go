// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fanzone/internal/auth"
	"github.com/hitoshi/fanzone/internal/model"
	"github.com/hitoshi/fanzone/internal/repository"
)

// SessionTerminator はユーザーの全セッションを破棄するインターフェース。
type SessionTerminator interface {
	DestroyAllSessionsForUser(ctx context.Context, userID string) error
}

// UpdateInput はユーザー更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Role   *model.Role
	Active *bool
}

// Service はユーザー管理のサービス層。
// ロールや有効状態を変更した場合は既存セッションをすべて破棄し、再ログインを強制する。
type Service struct {
	userRepo repository.UserRepository
	sessions SessionTerminator
	hasher   auth.PasswordHasher
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessions SessionTerminator,
	hasher auth.PasswordHasher,
) *Service {
	return &Service{
		userRepo: userRepo,
		sessions: sessions,
		hasher:   hasher,
		now:      time.Now,
	}
}

// ChangeRole はユーザーのロールを変更する。
func (s *Service) ChangeRole(ctx context.Context, userID string, role model.Role) (*model.User, error) {
	return s.Update(ctx, userID, UpdateInput{Role: &role})
}

// SetActive はユーザーの有効状態を変更する。
func (s *Service) SetActive(ctx context.Context, userID string, active bool) (*model.User, error) {
	return s.Update(ctx, userID, UpdateInput{Active: &active})
}

// Update はロールと有効状態を更新し、対象ユーザーの全セッションを破棄する。
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput) (*model.User, error) {
	if in.Role == nil && in.Active == nil {
		return nil, model.NewInvalidRequestError("role または active を指定してください")
	}
	if in.Role != nil && !in.Role.Valid() {
		return nil, model.NewInvalidRequestError("未知のロールです")
	}

	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}

	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.Active != nil {
		u.IsActive = *in.Active
	}

	if err := s.userRepo.UpdateRoleAndActive(ctx, u.ID, u.Role, u.IsActive); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if err := s.sessions.DestroyAllSessionsForUser(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("セッションの破棄に失敗しました: %w", err)
	}

	slog.Info("ユーザーを更新しました",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
		slog.Bool("active", u.IsActive),
	)
	return u, nil
}

// Provision はユーザーを作成する。同じメールアドレスのユーザーが既に存在する場合は
// 何も変更せずにそのユーザーを返し、createdはfalseになる。
func (s *Service) Provision(ctx context.Context, email, password string, role model.Role) (u *model.User, created bool, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, false, model.NewInvalidRequestError("メールアドレスの形式が不正です")
	}
	if !role.Valid() {
		return nil, false, model.NewInvalidRequestError("未知のロールです")
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, false, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.now().UTC()
	u = &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, false, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを作成しました",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	return u, true, nil
}

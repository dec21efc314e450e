// Package auth はパスワード認証とセッション管理を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/fanzone/internal/model"
	"github.com/hitoshi/fanzone/internal/repository"
)

// DefaultSessionDuration はセッションの有効期間。
const DefaultSessionDuration = 8 * time.Hour

// Metrics は認証処理が記録するメトリクスのインターフェース。
type Metrics interface {
	RecordLogin(result string)
	RecordSessionCreated()
	RecordSessionsCleaned(count int64)
}

type nopMetrics struct{}

func (nopMetrics) RecordLogin(string)          {}
func (nopMetrics) RecordSessionCreated()       {}
func (nopMetrics) RecordSessionsCleaned(int64) {}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionDuration time.Duration    // 未設定の場合はDefaultSessionDuration
	Now             func() time.Time // 未設定の場合はtime.Now
	Metrics         Metrics          // 未設定の場合は記録しない
}

// Service はログインとセッションのライフサイクルを管理する。
// sessionsテーブルはこのサービスだけが更新する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	hasher      PasswordHasher
	duration    time.Duration
	now         func() time.Time
	metrics     Metrics

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	hasher PasswordHasher,
	config ServiceConfig,
) *Service {
	s := &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		duration:    config.SessionDuration,
		now:         config.Now,
		metrics:     config.Metrics,
	}
	if s.duration <= 0 {
		s.duration = DefaultSessionDuration
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// SessionDuration はセッションの有効期間を返す。
func (s *Service) SessionDuration() time.Duration {
	return s.duration
}

// Login はメールアドレスとパスワードで認証し、セッションを発行する。
// ユーザーが存在しない場合もダミーハッシュで照合を行い、応答時間を揃える。
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*model.SessionInfo, string, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, "", storeError("failed to find user", err)
	}

	target := s.dummyPasswordHash()
	if user != nil {
		target = user.PasswordHash
	}
	ok := s.hasher.Verify(password, target)

	if user == nil || !ok || !user.IsActive {
		s.metrics.RecordLogin("invalid")
		slog.Info("login rejected", slog.String("ip", ip))
		return nil, "", ErrInvalidCredentials
	}

	token, expiresAt, err := s.CreateSession(ctx, user.ID, ip, userAgent)
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, "", err
	}

	now := s.now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		slog.Warn("failed to record last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.metrics.RecordLogin("success")
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return &model.SessionInfo{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		ExpiresAt:    expiresAt,
		LastActivity: now,
	}, token, nil
}

// Logout はセッションを破棄する。冪等。
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.DestroySession(ctx, token); err != nil {
		return err
	}
	slog.Info("user logged out")
	return nil
}

// CreateSession はセッションを作成し、クライアントに渡すトークンと有効期限を返す。
func (s *Service) CreateSession(ctx context.Context, userID, ip, userAgent string) (string, time.Time, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now()
	session := &model.Session{
		TokenHash:    HashSessionToken(token),
		UserID:       userID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.duration),
		LastActivity: now,
		IPAddress:    ip,
		UserAgent:    userAgent,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", time.Time{}, storeError("failed to save session", err)
	}

	s.metrics.RecordSessionCreated()
	return token, session.ExpiresAt, nil
}

// ValidateSession はトークンを検証し、last_activityを更新してセッション要約を返す。
// 期限切れのセッションはその場で削除する。
func (s *Service) ValidateSession(ctx context.Context, token string) (*model.SessionInfo, error) {
	session, user, now, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := s.sessionRepo.Touch(ctx, session.TokenHash, now); err != nil {
		return nil, storeError("failed to touch session", err)
	}

	return summarize(session, user, session.ExpiresAt, now), nil
}

// RefreshSession はValidateSessionと同じ検証を行い、有効期限を現在時刻から延長する。
func (s *Service) RefreshSession(ctx context.Context, token string) (*model.SessionInfo, error) {
	session, user, now, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(s.duration)
	if err := s.sessionRepo.Extend(ctx, session.TokenHash, expiresAt, now); err != nil {
		return nil, storeError("failed to extend session", err)
	}

	return summarize(session, user, expiresAt, now), nil
}

// DestroySession はセッションを削除する。既に存在しなくてもエラーにしない。
func (s *Service) DestroySession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByTokenHash(ctx, HashSessionToken(token)); err != nil {
		return storeError("failed to delete session", err)
	}
	return nil
}

// DestroyAllSessionsForUser は指定ユーザーの全セッションを削除する。
// ロールや有効フラグの変更時に再認証を強制するために使用する。
func (s *Service) DestroyAllSessionsForUser(ctx context.Context, userID string) error {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return storeError("failed to delete user sessions", err)
	}
	slog.Info("all sessions destroyed", slog.String("user_id", userID))
	return nil
}

// CleanupExpiredSessions は期限切れセッションを一括削除し、削除件数を返す。
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessionRepo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, storeError("failed to cleanup sessions", err)
	}
	s.metrics.RecordSessionsCleaned(n)
	return n, nil
}

// resolve はトークンに対応する有効なセッションと所有ユーザーを取得する。
// 期限は now >= expires_at で切れたものとみなす。
func (s *Service) resolve(ctx context.Context, token string) (*model.Session, *model.User, time.Time, error) {
	if token == "" {
		return nil, nil, time.Time{}, ErrSessionInvalid
	}

	session, err := s.sessionRepo.FindByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		return nil, nil, time.Time{}, storeError("failed to find session", err)
	}
	if session == nil {
		return nil, nil, time.Time{}, ErrSessionInvalid
	}

	now := s.now()
	if !now.Before(session.ExpiresAt) {
		if err := s.sessionRepo.DeleteByTokenHash(ctx, session.TokenHash); err != nil {
			return nil, nil, time.Time{}, storeError("failed to delete expired session", err)
		}
		return nil, nil, time.Time{}, ErrSessionExpired
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, time.Time{}, storeError("failed to find session owner", err)
	}
	if user == nil || !user.IsActive {
		return nil, nil, time.Time{}, ErrSessionInvalid
	}

	return session, user, now, nil
}

func summarize(session *model.Session, user *model.User, expiresAt, now time.Time) *model.SessionInfo {
	last := session.LastActivity
	if now.After(last) {
		last = now
	}
	return &model.SessionInfo{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		ExpiresAt:    expiresAt,
		LastActivity: last,
	}
}

// dummyPasswordHash は存在しないユーザーの照合に使うハッシュを返す。
// 実ハッシュと同じコストで生成するため照合時間が揃う。
func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("fanzone-dummy-password")
		if err != nil {
			slog.Error("failed to prepare dummy password hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

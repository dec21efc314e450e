// Package score はライブスコアの更新と配信を提供する。
package score

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/fanzone/internal/model"
	"github.com/hitoshi/fanzone/internal/repository"
)

// Publisher はスコア変更の配信先。
type Publisher interface {
	PublishScoreUpdate(score model.Score) error
	PublishScoreReset(score model.Score) error
}

// Service はスコアを永続化してから全接続へ配信する。
type Service struct {
	repo      repository.ScoreRepository
	publisher Publisher
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。nowがnilの場合はtime.Nowを使う。
func NewService(repo repository.ScoreRepository, publisher Publisher, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, publisher: publisher, now: now}
}

// Current は現在のスコアを返す。
func (s *Service) Current(ctx context.Context) (*model.Score, error) {
	sc, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("スコアの取得に失敗しました: %w", err)
	}
	if sc == nil {
		return &model.Score{}, nil
	}
	return sc, nil
}

// Update はスコアを検証して保存し、score:update を配信する。
func (s *Service) Update(ctx context.Context, sc model.Score) (*model.Score, error) {
	sc.HomeTeam = strings.TrimSpace(sc.HomeTeam)
	sc.AwayTeam = strings.TrimSpace(sc.AwayTeam)
	sc.Period = strings.TrimSpace(sc.Period)
	if sc.HomeScore < 0 || sc.AwayScore < 0 {
		return nil, model.NewInvalidRequestError("スコアは0以上で指定してください")
	}
	if sc.HomeTeam == "" || sc.AwayTeam == "" {
		return nil, model.NewInvalidRequestError("チーム名は必須です")
	}
	sc.UpdatedAt = s.now().UTC()

	if err := s.repo.Save(ctx, &sc); err != nil {
		return nil, fmt.Errorf("スコアの保存に失敗しました: %w", err)
	}
	if err := s.publisher.PublishScoreUpdate(sc); err != nil {
		return nil, fmt.Errorf("スコアの配信に失敗しました: %w", err)
	}

	slog.Info("スコアを更新しました",
		slog.Int("home_score", sc.HomeScore),
		slog.Int("away_score", sc.AwayScore),
		slog.String("period", sc.Period),
	)
	return &sc, nil
}

// Reset は得点を初期化し、score:reset を配信する。チーム名は維持される。
func (s *Service) Reset(ctx context.Context) (*model.Score, error) {
	sc, err := s.repo.Reset(ctx, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("スコアのリセットに失敗しました: %w", err)
	}
	if err := s.publisher.PublishScoreReset(*sc); err != nil {
		return nil, fmt.Errorf("スコアの配信に失敗しました: %w", err)
	}

	slog.Info("スコアをリセットしました")
	return sc, nil
}

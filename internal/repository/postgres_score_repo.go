package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/fanzone/internal/model"
)

// scoreRowID はscoresテーブルの唯一の行のID。
const scoreRowID = 1

// PostgresScoreRepo はPostgreSQLを使用したライブスコアリポジトリ。
type PostgresScoreRepo struct {
	db DBTX
}

// NewPostgresScoreRepo はPostgresScoreRepoを生成する。
func NewPostgresScoreRepo(db DBTX) *PostgresScoreRepo {
	return &PostgresScoreRepo{db: db}
}

// Get は現在のスコアを取得する。
// 行はマイグレーションで作成されるため、常に1件存在する。
func (r *PostgresScoreRepo) Get(ctx context.Context) (*model.Score, error) {
	s := &model.Score{}
	err := r.db.QueryRowContext(ctx,
		`SELECT home_team, away_team, home_score, away_score, period, updated_at
		 FROM scores WHERE id = $1`,
		scoreRowID,
	).Scan(&s.HomeTeam, &s.AwayTeam, &s.HomeScore, &s.AwayScore, &s.Period, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get score: %w", err)
	}
	return s, nil
}

// Save はスコアを上書き保存する。
func (r *PostgresScoreRepo) Save(ctx context.Context, score *model.Score) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scores (id, home_team, away_team, home_score, away_score, period, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   home_team = EXCLUDED.home_team,
		   away_team = EXCLUDED.away_team,
		   home_score = EXCLUDED.home_score,
		   away_score = EXCLUDED.away_score,
		   period = EXCLUDED.period,
		   updated_at = EXCLUDED.updated_at`,
		scoreRowID, score.HomeTeam, score.AwayTeam, score.HomeScore, score.AwayScore, score.Period, score.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	return nil
}

// Reset は得点とピリオドを初期化する。チーム名は維持する。
func (r *PostgresScoreRepo) Reset(ctx context.Context, at time.Time) (*model.Score, error) {
	s := &model.Score{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE scores SET home_score = 0, away_score = 0, period = '', updated_at = $2
		 WHERE id = $1
		 RETURNING home_team, away_team, home_score, away_score, period, updated_at`,
		scoreRowID, at,
	).Scan(&s.HomeTeam, &s.AwayTeam, &s.HomeScore, &s.AwayScore, &s.Period, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to reset score: %w", err)
	}
	return s, nil
}

// compile-time interface check
var _ ScoreRepository = (*PostgresScoreRepo)(nil)

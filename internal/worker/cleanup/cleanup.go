// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// 検証時の遅延削除に加えて、アクセスされないまま期限切れになった
// セッションを一定間隔でまとめて削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval は削除ジョブの既定の実行間隔。
const DefaultInterval = time.Hour

// SessionCleaner は期限切れセッションを削除し、削除件数を返すインターフェース。
// auth.Serviceが満たす。
type SessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 冪等な削除処理のため、複数のワーカーから同時に実行されても結果は変わらない。
type CleanupJob struct {
	cleaner  SessionCleaner
	logger   *slog.Logger
	Interval time.Duration // 実行間隔（デフォルト: 1時間）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(cleaner SessionCleaner, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		cleaner:  cleaner,
		logger:   logger,
		Interval: DefaultInterval,
	}
}

// Run は期限切れセッションを1回削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.cleaner.CleanupExpiredSessions(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、その後Interval毎に実行する。
// ctxがキャンセルされるまでブロックする。個々の実行エラーはログに記録して継続する。
func (j *CleanupJob) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	j.logger.Info("セッションクリーンアップジョブを開始します",
		slog.Duration("interval", interval),
	)

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}

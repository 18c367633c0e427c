package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/logging"
)

// StyleRunLog records the outcome of one processing run: what the
// analysis found, how many synthesis calls were issued and how many
// survived, and how the run ended.
type StyleRunLog struct {
	ID              uint      `gorm:"primaryKey"`
	RunID           string    `gorm:"column:run_id;uniqueIndex;size:64"`
	UserID          string    `gorm:"column:user_id;index;size:64"`
	SourceSHA1      string    `gorm:"column:source_sha1;size:40"`
	FaceShape       string    `gorm:"column:face_shape;size:32"`
	HairTexture     string    `gorm:"column:hair_texture;size:32"`
	StylesRequested int       `gorm:"column:styles_requested"`
	StylesRendered  int       `gorm:"column:styles_rendered"`
	Success         bool      `gorm:"column:success"`
	ErrorKind       string    `gorm:"column:error_kind;size:32"`
	LatencyMs       int64     `gorm:"column:latency_ms"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (StyleRunLog) TableName() string {
	return "style_run_logs"
}

// StyleRunRepository provides persistence APIs for run logs.
type StyleRunRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewStyleRunRepository creates a new repository instance.
func NewStyleRunRepository(db *gorm.DB, logger *zap.Logger) *StyleRunRepository {
	return &StyleRunRepository{
		db:             db,
		logger:         logger.Named("style_run_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *StyleRunRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&StyleRunLog{})
}

// SaveLog persists a run log entry.
func (r *StyleRunRepository) SaveLog(ctx context.Context, log *StyleRunLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RunID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRunIDAndUser retrieves a run log matching the run and owner.
func (r *StyleRunRepository) FindByRunIDAndUser(ctx context.Context, runID, userID string) (*StyleRunLog, error) {
	var log StyleRunLog
	if err := r.db.WithContext(ctx).First(&log, "run_id = ? AND user_id = ?", runID, userID).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// MetricsAggregation holds raw aggregates over the run log table.
type MetricsAggregation struct {
	TotalCount       int64
	SuccessCount     int64
	AverageRendered  float64
	AverageLatencyMs float64
}

// AggregateMetrics computes run statistics across all users.
func (r *StyleRunRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation

	row := r.db.WithContext(ctx).
		Model(&StyleRunLog{}).
		Select(
			"COUNT(*) AS total_count",
			"COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS success_count",
			"COALESCE(AVG(styles_rendered), 0) AS average_rendered",
			"COALESCE(AVG(latency_ms), 0) AS average_latency_ms",
		).
		Row()

	if err := row.Scan(&agg.TotalCount, &agg.SuccessCount, &agg.AverageRendered, &agg.AverageLatencyMs); err != nil {
		return nil, logging.NewOperationError("repository.aggregate_metrics", "", err)
	}
	return &agg, nil
}

func (r *StyleRunRepository) executeWithRetry(ctx context.Context, operation, runID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, runID, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, runID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, runID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, runID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, runID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"

	jobmetrics "github.com/odyssey-erp/authgate/internal/jobs"
)

// DefaultPruneRetention keeps expired audit rows for a week.
const DefaultPruneRetention = 7 * 24 * time.Hour

// SessionPruneJob deletes expired login audit rows.
type SessionPruneJob struct {
	DB      Execer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionPruneJob initialises the prune handler.
func NewSessionPruneJob(db Execer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPruneJob {
	return &SessionPruneJob{
		DB:      db,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle removes rows that expired before now minus the retention.
func (j *SessionPruneJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.DB == nil {
		return errors.New("session prune: handler not configured")
	}
	payload := SessionPrunePayload{Retention: DefaultPruneRetention}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Retention < 0 {
		payload.Retention = 0
	}

	tracker := j.Metrics.Track(TaskSessionPrune)
	defer func() {
		err = tracker.End(err)
	}()

	cutoff := j.now().Add(-payload.Retention)
	tag, err := j.DB.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`,
		pgtype.Timestamptz{Time: cutoff, Valid: true})
	if err != nil {
		j.logger().Error("prune sessions", slog.Any("error", err))
		return err
	}
	j.Metrics.AddPrunedSessions(tag.RowsAffected())
	j.logger().Info("pruned expired sessions",
		slog.Int64("rows", tag.RowsAffected()),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

func (j *SessionPruneJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *SessionPruneJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	jobmetrics "github.com/odyssey-erp/authgate/internal/jobs"
)

// Execer is the subset of pgx used by the audit jobs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// LoginAuditJob writes login audit rows.
type LoginAuditJob struct {
	DB      Execer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLoginAuditJob initialises the login audit handler.
func NewLoginAuditJob(db Execer, logger *slog.Logger, metrics *jobmetrics.Metrics) *LoginAuditJob {
	return &LoginAuditJob{DB: db, Logger: logger, Metrics: metrics}
}

// Handle inserts the audit row. Replays of the same session are ignored.
func (j *LoginAuditJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.DB == nil {
		return errors.New("login audit: handler not configured")
	}
	var payload LoginAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("login audit: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.SessionID == "" || payload.UserID == 0 {
		return fmt.Errorf("login audit: incomplete payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskLoginAudit)
	defer func() {
		err = tracker.End(err)
	}()

	createdAt := payload.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = j.DB.Exec(ctx, `INSERT INTO auth_sessions (id, user_id, created_at, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`,
		payload.SessionID,
		payload.UserID,
		pgtype.Timestamptz{Time: createdAt.UTC(), Valid: true},
		pgtype.Timestamptz{Time: payload.ExpiresAt.UTC(), Valid: true},
		pgtype.Text{String: payload.IP, Valid: payload.IP != ""},
		pgtype.Text{String: payload.UserAgent, Valid: payload.UserAgent != ""},
	)
	if err != nil {
		j.logger().Error("insert login audit", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
		return err
	}
	j.logger().Debug("login audited", slog.Int64("user_id", payload.UserID))
	return nil
}

func (j *LoginAuditJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLoginAudit records a successful login in auth_sessions.
	TaskLoginAudit = "auth:login_audit"
	// TaskSessionPrune removes expired auth_sessions rows.
	TaskSessionPrune = "auth:session_prune"
)

// LoginAuditPayload describes one successful login.
type LoginAuditPayload struct {
	SessionID string    `json:"session_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// SessionPrunePayload bounds a prune run. Rows that expired more than
// Retention ago are deleted.
type SessionPrunePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewLoginAuditTask constructs the login audit task.
func NewLoginAuditTask(payload LoginAuditPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLoginAudit, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// NewSessionPruneTask constructs the session prune task.
func NewSessionPruneTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(SessionPrunePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPrune, data), nil
}

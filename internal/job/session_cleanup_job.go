package job

import "context"

type ISessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context, hoursOld int) (int64, error)
}

type SessionCleanupJob struct {
	sessions    ISessionCleaner
	expiryHours int
}

func NewSessionCleanupJob(sessions ISessionCleaner, expiryHours int) *SessionCleanupJob {
	return &SessionCleanupJob{sessions: sessions, expiryHours: expiryHours}
}

func (j *SessionCleanupJob) Name() string {
	return "session_cleanup"
}

func (j *SessionCleanupJob) Run(ctx context.Context) error {
	if j.sessions == nil {
		return nil
	}
	_, err := j.sessions.CleanupExpiredSessions(ctx, j.expiryHours)
	return err
}

package repository

import (
	"context"
	"time"

	"booking-checkout/internal/infra"
	"booking-checkout/internal/infra/db"
	"booking-checkout/internal/usecase/shared"

	"github.com/google/uuid"
)

type NotificationRepository struct {
	db db.DBTX
}

func NewNotificationRepository(db db.DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) CreateJob(ctx context.Context, job shared.NewNotificationJob) error {
	_, err := r.db.Exec(ctx, `INSERT INTO notification_jobs (kind, topic, msg_key, payload, status, run_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		job.Kind, job.Topic, job.Key, job.Payload, shared.JobQueued, job.RunAt,
	)
	if err != nil {
		return infra.WrapRepoErr("failed to create notification job", err)
	}
	return nil
}

// FetchPending locks due jobs so that concurrent relays skip each other's batch.
func (r *NotificationRepository) FetchPending(ctx context.Context, now time.Time, limit int) ([]shared.NotificationJob, error) {
	rows, err := r.db.Query(ctx, `SELECT id, kind, topic, msg_key, payload, attempts
		FROM notification_jobs
		WHERE status = $1 AND run_at <= $2
		ORDER BY run_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		shared.JobQueued, now, limit,
	)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to fetch pending notification jobs", err)
	}
	defer rows.Close()

	var jobs []shared.NotificationJob
	for rows.Next() {
		var (
			j        shared.NotificationJob
			attempts int32
		)
		if err := rows.Scan(&j.ID, &j.Kind, &j.Topic, &j.Key, &j.Payload, &attempts); err != nil {
			return nil, infra.WrapRepoErr("failed to scan notification job", err)
		}
		j.Attempts = int(attempts)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to iterate notification jobs", err)
	}
	return jobs, nil
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE notification_jobs SET status = $2, sent_at = $3, attempts = attempts + 1
		WHERE id = $1`, id, shared.JobSent, at)
	if err != nil {
		return infra.WrapRepoErr("failed to mark notification job sent", err)
	}
	return nil
}

// MarkFailed reschedules the job, or parks it as failed when terminal.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, nextRunAt time.Time, terminal bool) error {
	status := shared.JobQueued
	if terminal {
		status = shared.JobFailed
	}
	_, err := r.db.Exec(ctx, `UPDATE notification_jobs
		SET status = $2, last_error = $3, run_at = $4, attempts = attempts + 1
		WHERE id = $1`, id, status, lastError, nextRunAt)
	if err != nil {
		return infra.WrapRepoErr("failed to mark notification job failed", err)
	}
	return nil
}

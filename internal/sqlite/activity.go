package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rpggio/clusterbench/internal/domain/activity"
)

// ActivityRepository implements activity.Repository for SQLite
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Log inserts a new activity entry
func (r *ActivityRepository) Log(ctx context.Context, entry *activity.ActivityEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO activity_log (
			project_id, subject, activity_type, summary, details,
			iteration_id, duration_ms, created_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		entry.ProjectID,
		entry.Subject,
		entry.ActivityType,
		entry.Summary,
		entry.Details,
		entry.IterationID,
		entry.DurationMS,
		createdAt.UTC(),
		entry.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		entry.ID = id
	}
	entry.CreatedAt = createdAt

	return nil
}

// List returns activity entries matching the given filters, newest first
func (r *ActivityRepository) List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	query := `
		SELECT
			id, project_id, subject, activity_type, summary, details,
			iteration_id, duration_ms, created_at, version
		FROM activity_log
	`

	args := []interface{}{}
	conditions := []string{}

	if opts.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, opts.ProjectID)
	}
	if opts.Subject != nil {
		conditions = append(conditions, "subject = ?")
		args = append(args, *opts.Subject)
	}
	if opts.ActivityType != nil {
		conditions = append(conditions, "activity_type = ?")
		args = append(args, *opts.ActivityType)
	}
	if opts.IterationID != nil {
		conditions = append(conditions, "iteration_id = ?")
		args = append(args, *opts.IterationID)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	entries := []activity.ActivityEntry{}
	for rows.Next() {
		var entry activity.ActivityEntry
		var subject sql.NullString
		var duration sql.NullInt64
		if err := rows.Scan(
			&entry.ID,
			&entry.ProjectID,
			&subject,
			&entry.ActivityType,
			&entry.Summary,
			&entry.Details,
			&entry.IterationID,
			&duration,
			&entry.CreatedAt,
			&entry.Version,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		if subject.Valid {
			entry.Subject = &subject.String
		}
		if duration.Valid {
			entry.DurationMS = &duration.Int64
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}

	return entries, nil
}

// DeleteProject removes every entry of a project
func (r *ActivityRepository) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM activity_log WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to delete activity: %w", err)
	}
	return nil
}

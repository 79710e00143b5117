package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrInvalidInput indicates a malformed activity entry.
var ErrInvalidInput = errors.New("invalid activity input")

// Service handles activity log operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new activity service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// LogActivity logs an activity entry with the current timestamp if missing.
func (s *Service) LogActivity(ctx context.Context, entry *ActivityEntry) error {
	if entry == nil || entry.ProjectID == "" || entry.ActivityType == "" {
		return ErrInvalidInput
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("logging activity: %w", err)
	}
	return nil
}

// Record logs an entry and only reports failures to the logger. History is
// best effort and never fails the action it describes.
func (s *Service) Record(ctx context.Context, entry *ActivityEntry) {
	if s == nil {
		return
	}
	if err := s.LogActivity(ctx, entry); err != nil {
		s.logger.Warn("activity log failed", "project_id", entry.ProjectID, "type", entry.ActivityType, "error", err)
	}
}

// GetRecentActivity lists activity entries with filtering.
func (s *Service) GetRecentActivity(ctx context.Context, opts ListActivityOptions) ([]ActivityEntry, error) {
	if opts.ProjectID == "" {
		return nil, ErrInvalidInput
	}
	entries, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	return entries, nil
}

// ForgetProject removes the history of a deleted project.
func (s *Service) ForgetProject(ctx context.Context, projectID string) error {
	if err := s.repo.DeleteProject(ctx, projectID); err != nil {
		return fmt.Errorf("deleting activity: %w", err)
	}
	return nil
}

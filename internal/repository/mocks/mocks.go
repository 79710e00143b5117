package mocks

import (
	"context"

	"github.com/rpggio/clusterbench/internal/domain/activity"
	"github.com/rpggio/clusterbench/internal/domain/project"
	"github.com/stretchr/testify/mock"
)

// ActivityRepository is a mock for activity.Repository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]activity.ActivityEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ActivityRepository) DeleteProject(ctx context.Context, projectID string) error {
	args := m.Called(ctx, projectID)
	return args.Error(0)
}

// Scheduler is a mock for project.Scheduler.
type Scheduler struct {
	mock.Mock
}

func (m *Scheduler) Enqueue(job project.Job) error {
	args := m.Called(job)
	return args.Error(0)
}

func (m *Scheduler) Cancel(projectID string) {
	m.Called(projectID)
}

func (m *Scheduler) Pending(projectID string) bool {
	args := m.Called(projectID)
	return args.Bool(0)
}

package activity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rpggio/clusterbench/internal/domain/activity"
	"github.com/rpggio/clusterbench/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestActivityService_LogAndList(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.ActivityRepository{}
	entry := &activity.ActivityEntry{
		ProjectID:    "proj1",
		ActivityType: activity.TypeProjectCreated,
		Summary:      "created",
		Version:      1,
	}

	repo.On("Log", ctx, entry).Return(nil)
	repo.On("List", ctx, activity.ListActivityOptions{ProjectID: "proj1"}).Return([]activity.ActivityEntry{*entry}, nil)

	svc := activity.NewService(repo, nil)
	require.NoError(t, svc.LogActivity(ctx, entry))
	require.False(t, entry.CreatedAt.IsZero())

	entries, err := svc.GetRecentActivity(ctx, activity.ListActivityOptions{ProjectID: "proj1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	repo.AssertExpectations(t)
}

func TestActivityService_RejectsIncompleteEntries(t *testing.T) {
	svc := activity.NewService(&mocks.ActivityRepository{}, nil)

	require.ErrorIs(t, svc.LogActivity(context.Background(), nil), activity.ErrInvalidInput)
	require.ErrorIs(t, svc.LogActivity(context.Background(), &activity.ActivityEntry{ProjectID: "p"}), activity.ErrInvalidInput)

	_, err := svc.GetRecentActivity(context.Background(), activity.ListActivityOptions{})
	require.ErrorIs(t, err, activity.ErrInvalidInput)
}

func TestActivityService_RecordSwallowsErrors(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.ActivityRepository{}
	repo.On("Log", ctx, mock.Anything).Return(errors.New("disk full"))

	svc := activity.NewService(repo, nil)
	svc.Record(ctx, &activity.ActivityEntry{ProjectID: "p", ActivityType: activity.TypeTaskFailed})
	repo.AssertNumberOfCalls(t, "Log", 1)

	var nilSvc *activity.Service
	nilSvc.Record(ctx, &activity.ActivityEntry{ProjectID: "p", ActivityType: activity.TypeTaskFailed})
}

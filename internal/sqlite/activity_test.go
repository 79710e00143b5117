package sqlite

import (
	"context"
	"testing"

	"github.com/rpggio/clusterbench/internal/domain/activity"
	"github.com/stretchr/testify/require"
)

func TestActivityRepository_LogList(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	repo := NewActivityRepository(db)
	entry1 := &activity.ActivityEntry{
		ProjectID:    "p1",
		ActivityType: activity.TypeProjectCreated,
		Summary:      "created project",
		Version:      1,
	}
	duration := int64(420)
	entry2 := &activity.ActivityEntry{
		ProjectID:    "p1",
		ActivityType: activity.TypeTaskSucceeded,
		Summary:      "clustering succeeded",
		IterationID:  2,
		DurationMS:   &duration,
		Version:      9,
	}

	require.NoError(t, repo.Log(ctx, entry1))
	require.NoError(t, repo.Log(ctx, entry2))
	require.NotZero(t, entry1.ID)
	require.False(t, entry1.CreatedAt.IsZero())

	entries, err := repo.List(ctx, activity.ListActivityOptions{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, entry2.ActivityType, entries[0].ActivityType)
	require.Equal(t, entry1.ActivityType, entries[1].ActivityType)
	require.NotNil(t, entries[0].DurationMS)
	require.Equal(t, int64(420), *entries[0].DurationMS)
	require.Equal(t, 2, entries[0].IterationID)
	require.Equal(t, int64(9), entries[0].Version)
	require.Nil(t, entries[1].Subject)
	require.Nil(t, entries[1].DurationMS)
}

func TestActivityRepository_Filters(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	repo := NewActivityRepository(db)
	subject := "(t1,t2)"
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		ProjectID:    "p1",
		Subject:      &subject,
		ActivityType: activity.TypeConstraintAnnotated,
		Summary:      "annotated",
		Details:      `{"type":"MUST_LINK"}`,
		IterationID:  1,
	}))
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{ProjectID: "p1", ActivityType: activity.TypeIterationStarted, Summary: "started", IterationID: 1}))
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{ProjectID: "p2", ActivityType: activity.TypeProjectCreated, Summary: "created"}))

	activityType := activity.TypeConstraintAnnotated
	iteration := 1
	entries, err := repo.List(ctx, activity.ListActivityOptions{
		ProjectID:    "p1",
		Subject:      &subject,
		ActivityType: &activityType,
		IterationID:  &iteration,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, subject, *entries[0].Subject)
	require.Equal(t, `{"type":"MUST_LINK"}`, entries[0].Details)

	entries, err = repo.List(ctx, activity.ListActivityOptions{ProjectID: "p1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, activity.TypeIterationStarted, entries[0].ActivityType)

	entries, err = repo.List(ctx, activity.ListActivityOptions{ProjectID: "p1", Offset: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, activity.TypeConstraintAnnotated, entries[0].ActivityType)

	entries, err = repo.List(ctx, activity.ListActivityOptions{ProjectID: "p3"})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestActivityRepository_DeleteProject(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	repo := NewActivityRepository(db)
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{ProjectID: "p1", ActivityType: activity.TypeProjectCreated, Summary: "created"}))
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{ProjectID: "p2", ActivityType: activity.TypeProjectCreated, Summary: "created"}))

	require.NoError(t, repo.DeleteProject(ctx, "p1"))

	entries, err := repo.List(ctx, activity.ListActivityOptions{ProjectID: "p1"})
	require.NoError(t, err)
	require.Empty(t, entries)
	entries, err = repo.List(ctx, activity.ListActivityOptions{ProjectID: "p2"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

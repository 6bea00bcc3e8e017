package services

import (
	"testing"
	"time"

	"rewards-wallet-system/models"

	"github.com/stretchr/testify/require"
)

func newTestTaskService(t *testing.T) *TaskService {
	t.Helper()
	wallet := newTestWallet(t)
	return NewTaskService(wallet.DB, wallet)
}

func TestPublishDueTasks(t *testing.T) {
	svc := newTestTaskService(t)

	past := time.Now().Add(-2 * time.Minute)
	future := time.Now().Add(2 * time.Hour)

	due := makeTask(t, svc.DB, 10)
	require.NoError(t, svc.DB.Model(due).Updates(map[string]interface{}{
		"status": models.TaskStatusScheduled, "publish_at": past,
	}).Error)

	notYet := makeTask(t, svc.DB, 10)
	require.NoError(t, svc.DB.Model(notYet).Updates(map[string]interface{}{
		"status": models.TaskStatusScheduled, "publish_at": future,
	}).Error)

	svc.PublishDueTasks()

	var got models.Task
	require.NoError(t, svc.DB.First(&got, "id = ?", due.ID).Error)
	require.Equal(t, models.TaskStatusPublished, got.Status)
	require.Nil(t, got.PublishAt)

	got = models.Task{}
	require.NoError(t, svc.DB.First(&got, "id = ?", notYet.ID).Error)
	require.Equal(t, models.TaskStatusScheduled, got.Status)
}

func TestArchiveExpiredTasks(t *testing.T) {
	svc := newTestTaskService(t)

	expired := makeTask(t, svc.DB, 10)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, svc.DB.Model(expired).Update("expires_at", past).Error)

	alive := makeTask(t, svc.DB, 10)

	svc.ArchiveExpiredTasks()

	var got models.Task
	require.NoError(t, svc.DB.First(&got, "id = ?", expired.ID).Error)
	require.Equal(t, models.TaskStatusArchived, got.Status)

	got = models.Task{}
	require.NoError(t, svc.DB.First(&got, "id = ?", alive.ID).Error)
	require.Equal(t, models.TaskStatusPublished, got.Status)
}

func TestArchivedTaskCannotBeSubmitted(t *testing.T) {
	svc := newTestTaskService(t)
	userID := makeAccount(t, svc.Wallet)

	task := makeTask(t, svc.DB, 25)
	past := time.Now().Add(-time.Minute)
	require.NoError(t, svc.DB.Model(task).Update("expires_at", past).Error)

	svc.ArchiveExpiredTasks()

	_, err := svc.Wallet.CreditTaskReward(userID, task.ID, "", "")
	require.ErrorIs(t, err, ErrTaskUnavailable)
}

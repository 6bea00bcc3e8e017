// services/scheduler.go
package services

import (
	"log"
	"time"

	"rewards-wallet-system/models"

	"github.com/go-co-op/gocron/v2"
)

func (s *TaskService) StartTaskScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(gocron.DurationJob(1*time.Minute), gocron.NewTask(s.PublishDueTasks))
	_, _ = sched.NewJob(gocron.DurationJob(1*time.Minute), gocron.NewTask(s.ArchiveExpiredTasks))
}

// PublishDueTasks flips scheduled tasks whose publish_at has passed to published
func (s *TaskService) PublishDueTasks() {
	var tasks []models.Task
	now := time.Now()
	err := s.DB.Where("status = ? AND publish_at <= ?", models.TaskStatusScheduled, now).
		Find(&tasks).Error
	if err != nil {
		log.Printf("[Scheduler] DB error: %v", err)
		return
	}

	for _, t := range tasks {
		t.Status = models.TaskStatusPublished
		t.PublishAt = nil
		if err := s.DB.Save(&t).Error; err != nil {
			log.Printf("[Scheduler] Failed to publish task %s: %v", t.ID, err)
		} else {
			log.Printf("✅ Auto-published task: %s", t.Title)
		}
	}
}

// ArchiveExpiredTasks drops expired published tasks out of the feed
func (s *TaskService) ArchiveExpiredTasks() {
	now := time.Now()
	res := s.DB.Model(&models.Task{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.TaskStatusPublished, now).
		Update("status", models.TaskStatusArchived)
	if res.Error != nil {
		log.Printf("[Scheduler] DB error archiving expired tasks: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("🗄️ Archived %d expired task(s)", res.RowsAffected)
	}
}

// services/task_service.go
package services

import (
	"encoding/json"
	"errors"
	"log"
	"path/filepath"
	"time"

	"rewards-wallet-system/models"
	"rewards-wallet-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type TaskService struct {
	DB     *gorm.DB
	Wallet *WalletService
}

func NewTaskService(db *gorm.DB, wallet *WalletService) *TaskService {
	return &TaskService{DB: db, Wallet: wallet}
}

// --- Admin Handlers ---

// CreateTask creates a new reward task (Admin only)
func (s *TaskService) CreateTask(c *fiber.Ctx) error {
	var req struct {
		Title        string            `json:"title" validate:"required"`
		Type         models.TaskType   `json:"type" validate:"omitempty,oneof=social cpa survey other"`
		Description  string            `json:"description"`
		TargetURL    string            `json:"target_url"`
		RewardPoints *int64            `json:"reward_points" validate:"required,min=0"`
		ExpiresAt    *time.Time        `json:"expires_at"`
		PublishAt    *time.Time        `json:"publish_at"`
		Status       models.TaskStatus `json:"status" validate:"omitempty,oneof=draft scheduled published archived"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}
	if req.RewardPoints == nil || *req.RewardPoints < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reward_points must be a non-negative integer"})
	}

	status := req.Status
	if status == "" {
		status = models.TaskStatusDraft
	}
	if status == models.TaskStatusScheduled && req.PublishAt == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "publish_at is required for scheduled tasks"})
	}

	taskType := req.Type
	if taskType == "" {
		taskType = models.TaskTypeOther
	}

	task := &models.Task{
		ID:           uuid.NewString(),
		Title:        req.Title,
		Type:         taskType,
		Description:  req.Description,
		TargetURL:    req.TargetURL,
		RewardPoints: *req.RewardPoints,
		IsActive:     true,
		ExpiresAt:    req.ExpiresAt,
		PublishAt:    req.PublishAt,
		Status:       status,
	}
	// Slug from title; uuid tail keeps re-used titles unique
	task.Slug = slug.Make(req.Title) + "-" + task.ID[:8]

	// Optional task image → R2 (small, public asset)
	if imageFile, err := c.FormFile("image"); err == nil && imageFile.Size > 0 {
		ext := filepath.Ext(imageFile.Filename)
		if ext == "" {
			ext = ".png"
		}
		key := "tasks/" + uuid.NewString() + ext
		imageURL, err := utils.UploadFileToR2(imageFile, key)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to upload task image"})
		}
		task.ImageURL = imageURL
	}

	if err := s.DB.Create(task).Error; err != nil {
		log.Printf("DB Error creating task: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create task"})
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

// UpdateTask updates an existing task (Admin only)
func (s *TaskService) UpdateTask(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid task ID"})
	}

	var task models.Task
	if err := s.DB.First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Task not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Title        *string            `json:"title"`
		Type         *models.TaskType   `json:"type"`
		Description  *string            `json:"description"`
		TargetURL    *string            `json:"target_url"`
		RewardPoints *int64             `json:"reward_points"`
		IsActive     *bool              `json:"is_active"`
		ExpiresAt    *time.Time         `json:"expires_at"`
		PublishAt    *time.Time         `json:"publish_at"`
		Status       *models.TaskStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Type != nil {
		task.Type = *req.Type
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.TargetURL != nil {
		task.TargetURL = *req.TargetURL
	}
	if req.RewardPoints != nil {
		if *req.RewardPoints < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reward_points must be non-negative"})
		}
		task.RewardPoints = *req.RewardPoints
	}
	if req.IsActive != nil {
		task.IsActive = *req.IsActive
	}
	if req.ExpiresAt != nil {
		task.ExpiresAt = req.ExpiresAt
	}
	if req.PublishAt != nil {
		task.PublishAt = req.PublishAt
	}
	if req.Status != nil {
		task.Status = *req.Status
	}

	if err := s.DB.Save(&task).Error; err != nil {
		log.Printf("DB Error updating task: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update task"})
	}
	return c.JSON(task)
}

// UpdateTaskStatus changes only the publishing status (Admin only)
func (s *TaskService) UpdateTaskStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid task ID"})
	}

	var req struct {
		Status    models.TaskStatus `json:"status" validate:"required,oneof=draft scheduled published archived"`
		PublishAt *time.Time        `json:"publish_at"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var task models.Task
	if err := s.DB.First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Task not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	task.Status = req.Status
	switch req.Status {
	case models.TaskStatusScheduled:
		if req.PublishAt == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "publish_at is required for scheduled tasks"})
		}
		task.PublishAt = req.PublishAt
	case models.TaskStatusPublished:
		task.PublishAt = nil
	}

	if err := s.DB.Save(&task).Error; err != nil {
		log.Printf("DB Error updating task status: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update task status"})
	}
	return c.JSON(fiber.Map{"message": "Task status updated successfully", "task": task})
}

// DeleteTask soft-deletes a task (Admin only)
func (s *TaskService) DeleteTask(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid task ID"})
	}

	var task models.Task
	if err := s.DB.First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Task not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if err := s.DB.Delete(&task).Error; err != nil {
		log.Printf("DB Error deleting task: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete task"})
	}
	return c.JSON(fiber.Map{"message": "Task deleted successfully"})
}

// GetAllTasks returns every task regardless of status (Admin only)
func (s *TaskService) GetAllTasks(c *fiber.Ctx) error {
	var tasks []models.Task
	if err := s.DB.Order("created_at DESC").Find(&tasks).Error; err != nil {
		log.Printf("DB Error fetching all tasks: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch tasks"})
	}
	return c.JSON(tasks)
}

// --- Public / User Handlers ---

// GetPublishedTasks lists tasks users can currently complete
func (s *TaskService) GetPublishedTasks(c *fiber.Ctx) error {
	now := time.Now()
	var tasks []models.Task
	if err := s.DB.
		Where("status = ? AND is_active = ?", models.TaskStatusPublished, true).
		Where("(expires_at IS NULL OR expires_at >= ?)", now).
		Order("created_at DESC").
		Find(&tasks).Error; err != nil {
		log.Printf("DB Error fetching published tasks: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch tasks"})
	}
	return c.JSON(tasks)
}

// GetTaskByID returns a single task
func (s *TaskService) GetTaskByID(c *fiber.Ctx) error {
	id := c.Params("id")

	var task models.Task
	if err := s.DB.First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(task)
}

// SubmitTask records a completion for the authenticated user and credits the
// reward through the wallet ledger. Multipart form: optional `payload` (JSON,
// stored opaque) and optional `proof` image (uploaded to R2).
func (s *TaskService) SubmitTask(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	taskID := c.Params("id")

	if _, err := uuid.Parse(taskID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid task ID"})
	}

	payload := c.FormValue("payload")
	if payload != "" && !json.Valid([]byte(payload)) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payload must be valid JSON"})
	}

	proofURL := ""
	if proofFile, err := c.FormFile("proof"); err == nil && proofFile.Size > 0 {
		if proofFile.Size > 10*1024*1024 { // 10MB
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "proof file too large (max 10MB)"})
		}
		ext := filepath.Ext(proofFile.Filename)
		if ext == "" {
			ext = ".jpg"
		}
		key := "proofs/" + uuid.NewString() + ext
		url, err := utils.UploadFileToR2(proofFile, key)
		if err != nil {
			// Fall back to local storage rather than dropping the proof
			localPath := utils.GetUploadPath("proofs/" + uuid.NewString() + ext)
			if saveErr := utils.SaveFile(proofFile, localPath); saveErr != nil {
				log.Printf("❌ Proof upload failed (R2: %v, local: %v)", err, saveErr)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store proof"})
			}
			url = "/" + localPath
		}
		proofURL = url
	}

	acct, err := s.Wallet.CreditTaskReward(userID, taskID, payload, proofURL)
	if err != nil {
		return walletError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "task submitted",
		"task_id": taskID,
		"account": acct,
	})
}

// GetUserSubmissions lists the authenticated user's accepted submissions
func (s *TaskService) GetUserSubmissions(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var subs []models.TaskSubmission
	if err := s.DB.Where("external_user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error; err != nil {
		log.Printf("DB Error fetching submissions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch submissions"})
	}
	return c.JSON(subs)
}

// handlers/task_routes.go
package handlers

import (
	"rewards-wallet-system/middleware"
	"rewards-wallet-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTaskRoutes(app *fiber.App, taskService *services.TaskService) {
	// 🔓 Public routes — no user context, but still behind Gateway auth
	app.Get("/tasks", taskService.GetPublishedTasks)
	app.Get("/tasks/:id", taskService.GetTaskByID)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/tasks/:id/submit", taskService.SubmitTask)
	secured.Get("/user/submissions", taskService.GetUserSubmissions)

	// 🔒 Admin-only routes
	admin := secured.Group("/s/admin", middleware.RequireRole("admin"))
	admin.Post("/tasks", taskService.CreateTask)
	admin.Get("/tasks", taskService.GetAllTasks)
	admin.Put("/tasks/:id", taskService.UpdateTask)
	admin.Patch("/tasks/:id", taskService.UpdateTask)
	admin.Patch("/tasks/:id/status", taskService.UpdateTaskStatus)
	admin.Delete("/tasks/:id", taskService.DeleteTask)
}

// file: internals/route/details/proctor_routes.go
package details

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"examproctor_backend/internals/constants"
	enrctl "examproctor_backend/internals/features/exams/enrollments/controller"
	evctl "examproctor_backend/internals/features/proctoring/events/controller"
	sessctl "examproctor_backend/internals/features/sessions/sessions/controller"
	"examproctor_backend/internals/middlewares/auth"
)

func ProctorRoutes(r fiber.Router, db *gorm.DB, deps Deps) {
	onlyProctor := auth.OnlyRoles("Proctor access only", constants.RoleProctor, constants.RoleAdmin)

	sessionController := sessctl.NewSessionController(db, deps.Lifecycle)
	proctoringController := evctl.NewProctoringController(db, deps.Aggregator)
	enrollmentController := enrctl.NewEnrollmentController(db, deps.Aggregator)

	sessions := r.Group("/sessions", onlyProctor)
	sessions.Get("/:id", sessionController.GetState)
	sessions.Post("/:id/suspend", sessionController.Suspend)
	sessions.Post("/:id/reinstate", sessionController.Reinstate)
	sessions.Post("/:id/flag", proctoringController.SetManualFlag)
	sessions.Get("/:id/summary", proctoringController.GetSummary)
	sessions.Get("/:id/events", proctoringController.ListEvents)

	exams := r.Group("/exams", onlyProctor)
	exams.Get("/:id/enrollments", enrollmentController.ListByExam)
}

// file: internals/route/details/admin_routes.go
package details

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"examproctor_backend/internals/constants"
	enrctl "examproctor_backend/internals/features/exams/enrollments/controller"
	examctl "examproctor_backend/internals/features/exams/exams/controller"
	qctl "examproctor_backend/internals/features/exams/questions/controller"
	evctl "examproctor_backend/internals/features/proctoring/events/controller"
	"examproctor_backend/internals/middlewares/auth"
)

func AdminRoutes(r fiber.Router, db *gorm.DB, deps Deps) {
	onlyAdmin := auth.OnlyRoles("Admin access only", constants.RoleAdmin)

	examController := examctl.NewExamController(db)
	questionController := qctl.NewQuestionController(db)
	enrollmentController := enrctl.NewEnrollmentController(db, deps.Aggregator)
	proctoringController := evctl.NewProctoringController(db, deps.Aggregator)

	exams := r.Group("/exams", onlyAdmin)
	exams.Post("/", examController.Create)
	exams.Get("/", examController.List)
	exams.Get("/:id", examController.GetByID)
	exams.Post("/:id/publish", examController.Publish)
	exams.Get("/:id/enrollments", enrollmentController.ListByExam)

	questions := r.Group("/questions", onlyAdmin)
	questions.Post("/", questionController.Create)

	enrollments := r.Group("/enrollments", onlyAdmin)
	enrollments.Post("/bulk", enrollmentController.BulkEnroll)

	// AI workers authenticate with an admin-scoped service token
	violations := r.Group("/violations", onlyAdmin)
	violations.Post("/", proctoringController.RecordViolation)
}

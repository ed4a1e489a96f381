// file: internals/route/details/student_routes.go
package details

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"examproctor_backend/internals/constants"
	ansctl "examproctor_backend/internals/features/exams/answers/controller"
	enrctl "examproctor_backend/internals/features/exams/enrollments/controller"
	examctl "examproctor_backend/internals/features/exams/exams/controller"
	qctl "examproctor_backend/internals/features/exams/questions/controller"
	sessctl "examproctor_backend/internals/features/sessions/sessions/controller"
	"examproctor_backend/internals/middlewares/auth"
)

func StudentRoutes(r fiber.Router, db *gorm.DB, deps Deps) {
	onlyStudent := auth.OnlyRoles("Student access only", constants.RoleStudent)

	examController := examctl.NewExamController(db)
	questionController := qctl.NewQuestionController(db)
	enrollmentController := enrctl.NewEnrollmentController(db, deps.Aggregator)
	sessionController := sessctl.NewSessionController(db, deps.Lifecycle)
	answerController := ansctl.NewAnswerController(db, deps.Answers)

	exams := r.Group("/exams", onlyStudent)
	exams.Get("/", examController.List)
	exams.Get("/:id", examController.GetByID)
	exams.Get("/:id/questions", questionController.ListByExam)

	enrollments := r.Group("/enrollments", onlyStudent)
	enrollments.Post("/", enrollmentController.Enroll)
	enrollments.Get("/me", enrollmentController.ListMine)

	sessions := r.Group("/sessions", onlyStudent)
	sessions.Post("/start", sessionController.Start)
	sessions.Get("/:id", sessionController.GetState)
	sessions.Post("/:id/heartbeat", sessionController.Heartbeat)
	sessions.Post("/:id/submit", sessionController.Submit)

	answers := r.Group("/answers", onlyStudent)
	answers.Put("/", answerController.Save)
}

// file: internals/route/index.go
package routes

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"examproctor_backend/internals/middlewares/auth"
	routeDetails "examproctor_backend/internals/route/details"
)

var startTime time.Time

func SetupRoutes(app *fiber.App, db *gorm.DB, deps routeDetails.Deps) {
	startTime = time.Now()

	BaseRoutes(app, db)

	// ===================== STUDENT =====================
	log.Println("[INFO] Setting up STUDENT group...")
	student := app.Group("/api/s", auth.AuthMiddleware())
	routeDetails.StudentRoutes(student, db, deps)

	// ===================== PROCTOR =====================
	log.Println("[INFO] Setting up PROCTOR group...")
	proctor := app.Group("/api/p", auth.AuthMiddleware())
	routeDetails.ProctorRoutes(proctor, db, deps)

	// ===================== ADMIN =====================
	log.Println("[INFO] Setting up ADMIN group...")
	admin := app.Group("/api/a", auth.AuthMiddleware())
	routeDetails.AdminRoutes(admin, db, deps)

	// ===================== WEBSOCKET =====================
	log.Println("[INFO] Setting up WS routes...")
	routeDetails.WebsocketRoutes(app, deps)
}

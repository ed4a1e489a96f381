// file: internals/route/details/ws_routes.go
package details

import (
	"github.com/gofiber/fiber/v2"

	"examproctor_backend/internals/constants"
	"examproctor_backend/internals/features/proctoring/gateway"
	"examproctor_backend/internals/middlewares/auth"
)

func WebsocketRoutes(app *fiber.App, deps Deps) {
	ws := app.Group("/ws", gateway.UpgradeRequired, auth.AuthMiddleware())

	// student ingest + notification channel
	ws.Get("/sessions/:id",
		auth.OnlyRoles("Student access only", constants.RoleStudent),
		deps.Gateway.Handler())

	// proctor watch channels
	watch := ws.Group("/watch", auth.OnlyRoles("Proctor access only", constants.RoleProctor, constants.RoleAdmin))
	watch.Get("/sessions/:id", deps.Gateway.WatchSessionHandler())
	watch.Get("/exams/:id", deps.Gateway.WatchExamHandler())
}

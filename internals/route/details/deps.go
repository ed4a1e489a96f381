// file: internals/route/details/deps.go
package details

import (
	anssvc "examproctor_backend/internals/features/exams/answers/service"
	aggsvc "examproctor_backend/internals/features/proctoring/aggregator/service"
	"examproctor_backend/internals/features/proctoring/gateway"
	sessionsvc "examproctor_backend/internals/features/sessions/sessions/service"
)

// Deps: shared services the route files wire into controllers. Built once
// in main, never per-request.
type Deps struct {
	Lifecycle  *sessionsvc.SessionLifecycleService
	Aggregator *aggsvc.ViolationAggregatorService
	Answers    *anssvc.AnswerStoreService
	Gateway    *gateway.Gateway
}

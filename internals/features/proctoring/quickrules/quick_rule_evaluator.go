// file: internals/features/proctoring/quickrules/quick_rule_evaluator.go
package quickrules

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	evmodel "examproctor_backend/internals/features/proctoring/events/model"
)

/* =========================================================
   QUICK-RULE EVALUATOR
   Runs synchronously inside the ingest path, after the
   behavior event row is persisted. Cheap by contract: one
   counting read at most, no external calls. Advisory only;
   warnings never suspend the session.
========================================================= */

const DefaultTabSwitchThreshold = 3

type WarnNotifier interface {
	WarnStudent(sessionID uuid.UUID, payload interface{})
}

type Warning struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Count   int64  `json:"count,omitempty"`
}

type Evaluator struct {
	DB       *gorm.DB
	Notifier WarnNotifier

	TabSwitchThreshold int64
}

func NewEvaluator(db *gorm.DB, notifier WarnNotifier) *Evaluator {
	return &Evaluator{DB: db, Notifier: notifier, TabSwitchThreshold: DefaultTabSwitchThreshold}
}

// Evaluate runs every rule independently for one just-persisted event and
// returns the warning it emitted, if any.
func (e *Evaluator) Evaluate(ctx context.Context, sessionID uuid.UUID, eventType evmodel.BehaviorEventType) (*Warning, error) {
	var warning *Warning

	switch eventType {
	case evmodel.BehaviorTabSwitch, evmodel.BehaviorFocusLost:
		// Level-triggered: once the combined count reaches the threshold,
		// every further occurrence re-fires the warning.
		var count int64
		err := e.DB.WithContext(ctx).Model(&evmodel.BehaviorEventModel{}).
			Where("behavior_event_session_id = ? AND behavior_event_type IN ?",
				sessionID, []evmodel.BehaviorEventType{evmodel.BehaviorTabSwitch, evmodel.BehaviorFocusLost}).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count >= e.TabSwitchThreshold {
			warning = &Warning{
				Rule:    "TAB_SWITCH_LIMIT",
				Message: fmt.Sprintf("You have left the exam tab %d times. Further switching may be flagged.", count),
				Count:   count,
			}
		}

	case evmodel.BehaviorFullscreenExit:
		warning = &Warning{
			Rule:    "FULLSCREEN_EXIT",
			Message: "Exiting fullscreen is not allowed during the exam.",
		}

	case evmodel.BehaviorCopyAttempt, evmodel.BehaviorPasteAttempt:
		warning = &Warning{
			Rule:    "COPY_PASTE",
			Message: "Copying or pasting content is not allowed during the exam.",
		}
	}

	if warning != nil && e.Notifier != nil {
		e.Notifier.WarnStudent(sessionID, warning)
		log.Printf("[QUICKRULES] session=%s rule=%s count=%d", sessionID, warning.Rule, warning.Count)
	}
	return warning, nil
}

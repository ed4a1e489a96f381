// file: internals/features/sessions/scheduler/scheduler.go
package scheduler

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	exmodel "examproctor_backend/internals/features/exams/exams/model"
	sessmodel "examproctor_backend/internals/features/sessions/sessions/model"
	sessionsvc "examproctor_backend/internals/features/sessions/sessions/service"
)

/* =========================================================
   PERIODIC TASK RUNNER
   Two independent, idempotent jobs on a fixed cadence:
   - exam status transition (PUBLISHED→ONGOING→COMPLETED)
   - stale/overdue session reaper (forced submit)
   No shared mutable state between ticks: every tick re-reads
   what it needs from the store. Every unit of work (one exam,
   one session) is its own failure domain.
========================================================= */

type Runner struct {
	DB        *gorm.DB
	Lifecycle *sessionsvc.SessionLifecycleService

	Interval         time.Duration
	HeartbeatTimeout time.Duration

	now func() time.Time
}

func NewRunner(db *gorm.DB, lifecycle *sessionsvc.SessionLifecycleService, interval, heartbeatTimeout time.Duration) *Runner {
	return &Runner{
		DB:               db,
		Lifecycle:        lifecycle,
		Interval:         interval,
		HeartbeatTimeout: heartbeatTimeout,
		now:              time.Now,
	}
}

func (r *Runner) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		log.Printf("[SCHEDULER] running every %s (heartbeat timeout %s)", r.Interval, r.HeartbeatTimeout)
		for {
			select {
			case <-ctx.Done():
				log.Println("[SCHEDULER] stopped")
				return
			case <-ticker.C:
				r.TransitionExamStatuses(ctx)
				r.ReapStaleSessions(ctx)
			}
		}
	}()
}

/* =========================
   Exam status job
   ========================= */

// TransitionExamStatuses moves each due exam one step forward. Transitions
// are per-exam with a status guard in the WHERE clause, so the job is both
// idempotent and safe against concurrent runners; one failure never blocks
// the rest of the batch.
func (r *Runner) TransitionExamStatuses(ctx context.Context) {
	now := r.now().UTC()

	var toOngoing []exmodel.ExamModel
	if err := r.DB.WithContext(ctx).
		Where("exam_status = ? AND exam_start_time <= ?", exmodel.ExamStatusPublished, now).
		Find(&toOngoing).Error; err != nil {
		log.Printf("[SCHEDULER] exam ONGOING scan failed: %v", err)
	} else {
		for _, exam := range toOngoing {
			if err := r.DB.WithContext(ctx).Model(&exmodel.ExamModel{}).
				Where("exam_id = ? AND exam_status = ?", exam.ExamID, exmodel.ExamStatusPublished).
				Update("exam_status", exmodel.ExamStatusOngoing).Error; err != nil {
				log.Printf("[SCHEDULER] exam=%s → ONGOING failed: %v", exam.ExamID, err)
				continue
			}
			log.Printf("[SCHEDULER] exam=%s → ONGOING", exam.ExamID)
		}
	}

	var toCompleted []exmodel.ExamModel
	if err := r.DB.WithContext(ctx).
		Where("exam_status = ? AND exam_end_time <= ?", exmodel.ExamStatusOngoing, now).
		Find(&toCompleted).Error; err != nil {
		log.Printf("[SCHEDULER] exam COMPLETED scan failed: %v", err)
		return
	}
	for _, exam := range toCompleted {
		if err := r.DB.WithContext(ctx).Model(&exmodel.ExamModel{}).
			Where("exam_id = ? AND exam_status = ?", exam.ExamID, exmodel.ExamStatusOngoing).
			Update("exam_status", exmodel.ExamStatusCompleted).Error; err != nil {
			log.Printf("[SCHEDULER] exam=%s → COMPLETED failed: %v", exam.ExamID, err)
			continue
		}
		log.Printf("[SCHEDULER] exam=%s → COMPLETED", exam.ExamID)
	}
}

/* =========================
   Stale session reaper
   ========================= */

// ReapStaleSessions force-submits every ACTIVE session that is either past
// its effective deadline (extended_end_at when set) or has not heartbeated
// within the timeout. Each submission runs in its own isolated failure
// domain: one scoring error must not prevent the rest of the sweep.
func (r *Runner) ReapStaleSessions(ctx context.Context) {
	now := r.now().UTC()
	cutoff := now.Add(-r.HeartbeatTimeout)

	// Tick-local snapshot; sessions are referenced by id, never cached
	// across ticks.
	var sessions []sessmodel.ExamSessionModel
	if err := r.DB.WithContext(ctx).
		Where("exam_session_submitted_at IS NULL AND exam_session_is_suspended = ?", false).
		Find(&sessions).Error; err != nil {
		log.Printf("[REAPER] session scan failed: %v", err)
		return
	}
	if len(sessions) == 0 {
		return
	}

	durations, err := r.examDurations(ctx, sessions)
	if err != nil {
		log.Printf("[REAPER] exam lookup failed: %v", err)
		return
	}

	for _, session := range sessions {
		stale := session.ExamSessionLastHeartbeatAt.Before(cutoff)
		overdue := false
		if dur, ok := durations[session.ExamSessionExamID.String()]; ok {
			// the compensated deadline wins: a reinstated session is left
			// alone until extended_end_at even when the original deadline
			// has passed
			overdue = !now.Before(session.EffectiveDeadline(dur))
		}
		if !stale && !overdue {
			continue
		}
		r.reapOne(ctx, session, stale, overdue)
	}
}

func (r *Runner) reapOne(ctx context.Context, session sessmodel.ExamSessionModel, stale, overdue bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[REAPER] panic submitting session=%s: %v", session.ExamSessionID, rec)
		}
	}()

	if _, err := r.Lifecycle.Submit(ctx, session.ExamSessionID); err != nil {
		log.Printf("[REAPER] forced submit failed session=%s stale=%v overdue=%v: %v",
			session.ExamSessionID, stale, overdue, err)
		return
	}
	log.Printf("[REAPER] forced submit session=%s stale=%v overdue=%v", session.ExamSessionID, stale, overdue)
}

func (r *Runner) examDurations(ctx context.Context, sessions []sessmodel.ExamSessionModel) (map[string]int, error) {
	seen := make(map[string]struct{}, len(sessions))
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		key := s.ExamSessionExamID.String()
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			ids = append(ids, key)
		}
	}

	var exams []exmodel.ExamModel
	if err := r.DB.WithContext(ctx).
		Where("exam_id IN ?", ids).
		Find(&exams).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int, len(exams))
	for _, e := range exams {
		out[e.ExamID.String()] = e.ExamDurationMinutes
	}
	return out, nil
}

package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edustake/edustake-core/internal/application/query"
	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE RECOMMENDATIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// recommendationBatchSize - сколько студентов обрабатывается за страницу.
const recommendationBatchSize = 100

// RecomputeRecommendationsJob refreshes stored recommendations for all
// active students. Scoring is idempotent, so rerunning the job replaces
// stale explanations instead of piling up duplicates.
type RecomputeRecommendationsJob struct {
	profileRepo    profile.Repository
	recommender    *query.RecommendTasksHandler
	eventPublisher shared.EventPublisher
	logger         *slog.Logger

	// PerStudentLimit caps recommendations per student (0 = handler default).
	PerStudentLimit int
}

// NewRecomputeRecommendationsJob creates the job.
func NewRecomputeRecommendationsJob(
	profileRepo profile.Repository,
	recommender *query.RecommendTasksHandler,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *RecomputeRecommendationsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecomputeRecommendationsJob{
		profileRepo:    profileRepo,
		recommender:    recommender,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Name implements scheduler.Job.
func (j *RecomputeRecommendationsJob) Name() string { return "recompute_recommendations" }

// Run pages through active students and rescores each one.
func (j *RecomputeRecommendationsJob) Run(ctx context.Context) error {
	var processed, failed int

	for offset := 0; ; offset += recommendationBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		students, err := j.profileRepo.ListActiveStudents(ctx, recommendationBatchSize, offset)
		if err != nil {
			return fmt.Errorf("recompute_recommendations: failed to list students: %w", err)
		}
		if len(students) == 0 {
			break
		}

		for _, student := range students {
			q := query.RecommendTasksQuery{StudentID: student.ID, Limit: j.PerStudentLimit}
			if _, err := j.recommender.Handle(ctx, q); err != nil {
				failed++
				j.logger.Error("failed to rescore student",
					"student_id", student.ID, "error", err)
				continue
			}
			processed++
			_ = j.eventPublisher.Publish(
				shared.NewBaseEvent(shared.EventRecommendationsRefreshed, student.ID))
		}

		if len(students) < recommendationBatchSize {
			break
		}
	}

	j.logger.Info("recommendations recomputed", "students", processed, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("recompute_recommendations: %d students failed", failed)
	}
	return nil
}

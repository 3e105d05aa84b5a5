// Package eventhandler содержит обработчики доменных событий.
// Эти обработчики реализуют event-driven архитектуру и связывают
// различные части системы через асинхронные события.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edustake/edustake-core/internal/application/saga"
	"github.com/edustake/edustake-core/internal/domain/enrollment"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ENROLLMENT REVIEWED HANDLER
// Реагирует на завершённое ревью: пересчитывает статистику задачи
// (она питает фактор high_success_rate рекомендаций) и, если включён
// авто-минтинг, запускает воркфлоу выпуска бейджа за 5 звёзд.
// ═══════════════════════════════════════════════════════════════════════════

// OnEnrollmentReviewedHandler обрабатывает событие завершённого ревью.
type OnEnrollmentReviewedHandler struct {
	enrollmentRepo enrollment.Repository
	taskRepo       task.Repository
	mintingSaga    *saga.BadgeMintingSaga

	logger *slog.Logger

	config EnrollmentReviewedConfig
}

// EnrollmentReviewedConfig содержит конфигурацию обработчика.
type EnrollmentReviewedConfig struct {
	// AutoMintBadges - запускать ли минтинг бейджа автоматически.
	// При false минтинг остаётся явным действием студента.
	AutoMintBadges bool

	// MintTimeout - лимит времени на один воркфлоу минтинга.
	MintTimeout time.Duration
}

// DefaultEnrollmentReviewedConfig возвращает конфигурацию по умолчанию.
func DefaultEnrollmentReviewedConfig() EnrollmentReviewedConfig {
	return EnrollmentReviewedConfig{
		AutoMintBadges: false,
		MintTimeout:    30 * time.Second,
	}
}

// NewOnEnrollmentReviewedHandler создаёт новый обработчик.
func NewOnEnrollmentReviewedHandler(
	enrollmentRepo enrollment.Repository,
	taskRepo task.Repository,
	mintingSaga *saga.BadgeMintingSaga,
	logger *slog.Logger,
	config EnrollmentReviewedConfig,
) *OnEnrollmentReviewedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MintTimeout == 0 {
		config.MintTimeout = DefaultEnrollmentReviewedConfig().MintTimeout
	}

	return &OnEnrollmentReviewedHandler{
		enrollmentRepo: enrollmentRepo,
		taskRepo:       taskRepo,
		mintingSaga:    mintingSaga,
		logger:         logger,
		config:         config,
	}
}

// Handle обрабатывает событие EnrollmentReviewedEvent.
func (h *OnEnrollmentReviewedHandler) Handle(event shared.Event) error {
	reviewed, ok := event.(shared.EnrollmentReviewedEvent)
	if !ok {
		return fmt.Errorf("on_enrollment_reviewed: unexpected event type %T", event)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.MintTimeout)
	defer cancel()

	if err := h.refreshTaskStats(ctx, reviewed.TaskID); err != nil {
		// Статистика пересчитывается фоновой джобой; ошибка здесь не критична.
		h.logger.Warn("failed to refresh task stats",
			slog.String("task_id", reviewed.TaskID),
			slog.String("error", err.Error()))
	}

	if !reviewed.BadgeEligible || !h.config.AutoMintBadges {
		return nil
	}

	result, err := h.mintingSaga.Execute(ctx, saga.MintBadgeInput{
		EnrollmentID: reviewed.AggregateID(),
		RequestedBy:  reviewed.StudentID,
	})
	if err != nil {
		h.logger.Error("auto-mint failed",
			slog.String("enrollment_id", reviewed.AggregateID()),
			slog.String("error", err.Error()))
		return err
	}

	h.logger.Info("badge auto-minted",
		slog.String("enrollment_id", reviewed.AggregateID()),
		slog.String("token_id", result.Badge.TokenID))
	return nil
}

// refreshTaskStats пересчитывает success rate и средний рейтинг задачи.
func (h *OnEnrollmentReviewedHandler) refreshTaskStats(ctx context.Context, taskID string) error {
	stats, err := h.enrollmentRepo.StatsByTask(ctx, taskID)
	if err != nil {
		return err
	}
	return h.taskRepo.UpdateStats(ctx, taskID, stats.SuccessRate(), stats.AverageScore)
}

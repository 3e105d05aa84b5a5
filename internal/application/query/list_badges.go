package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edustake/edustake-core/internal/domain/badge"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST BADGES QUERY
// Витрина proof-of-learning бейджей студента.
// ══════════════════════════════════════════════════════════════════════════════

// ListBadgesQuery содержит параметры запроса бейджей.
type ListBadgesQuery struct {
	// StudentID - внутренний ID студента.
	StudentID string

	// Limit - количество записей (по умолчанию 20, максимум 100).
	Limit int
}

// Validate проверяет корректность параметров запроса.
func (q *ListBadgesQuery) Validate() error {
	if q.StudentID == "" {
		return errors.New("list_badges: student_id is required")
	}
	if q.Limit < 0 {
		return errors.New("list_badges: limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}

// BadgeDTO - DTO бейджа.
type BadgeDTO struct {
	// ID - ID бейджа.
	ID string `json:"id"`

	// TaskID - задача, за которую выдан бейдж.
	TaskID string `json:"task_id"`

	// Title - название навыка на бейдже.
	Title string `json:"title"`

	// Description - описание достижения.
	Description string `json:"description"`

	// ImageURL - ссылка на артворк.
	ImageURL string `json:"image_url"`

	// SkillVerified - подтверждённый навык.
	SkillVerified string `json:"skill_verified"`

	// TokenID - токен на EduChain Testnet.
	TokenID string `json:"token_id"`

	// BlockchainNetwork - сеть, в которой заякорен бейдж.
	BlockchainNetwork string `json:"blockchain_network"`

	// MintedAt - когда бейдж сминчен.
	MintedAt time.Time `json:"minted_at"`
}

// ListBadgesResult содержит результат запроса бейджей.
type ListBadgesResult struct {
	// StudentID - ID студента.
	StudentID string `json:"student_id"`

	// Badges - бейджи, новые первыми.
	Badges []BadgeDTO `json:"badges"`

	// TotalCount - общее количество бейджей студента.
	TotalCount int `json:"total_count"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ListBadgesHandler обрабатывает ListBadgesQuery.
type ListBadgesHandler struct {
	badgeRepo badge.Repository
}

// NewListBadgesHandler создаёт новый ListBadgesHandler.
func NewListBadgesHandler(badgeRepo badge.Repository) *ListBadgesHandler {
	return &ListBadgesHandler{badgeRepo: badgeRepo}
}

// Handle выполняет запрос бейджей.
func (h *ListBadgesHandler) Handle(ctx context.Context, q ListBadgesQuery) (*ListBadgesResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	badges, err := h.badgeRepo.ListByStudent(ctx, q.StudentID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list_badges: failed to list: %w", err)
	}

	total, err := h.badgeRepo.CountByStudent(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("list_badges: failed to count: %w", err)
	}

	result := &ListBadgesResult{
		StudentID: q.StudentID,
		Badges:    make([]BadgeDTO, 0, len(badges)),
		TotalCount: total,
	}
	for _, b := range badges {
		result.Badges = append(result.Badges, BadgeDTO{
			ID:                b.ID,
			TaskID:            b.TaskID,
			Title:             b.Title,
			Description:       b.Description,
			ImageURL:          b.ImageURL,
			SkillVerified:     b.SkillVerified,
			TokenID:           b.TokenID,
			BlockchainNetwork: b.BlockchainNetwork,
			MintedAt:          b.MintedAt,
		})
	}

	return result, nil
}

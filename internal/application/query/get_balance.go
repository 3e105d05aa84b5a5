package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edustake/edustake-core/internal/domain/ledger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET BALANCE QUERY
// Возвращает баланс EDU, выведенный из подтверждённых записей леджера,
// и последние движения по счёту.
// ══════════════════════════════════════════════════════════════════════════════

// GetBalanceQuery содержит параметры запроса баланса.
type GetBalanceQuery struct {
	// UserID - внутренний ID участника.
	UserID string

	// HistoryLimit - сколько последних записей вернуть (по умолчанию 20).
	HistoryLimit int
}

// Validate проверяет корректность параметров запроса.
func (q *GetBalanceQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("get_balance: user_id is required")
	}
	if q.HistoryLimit < 0 {
		return errors.New("get_balance: history_limit cannot be negative")
	}
	if q.HistoryLimit == 0 {
		q.HistoryLimit = 20
	}
	if q.HistoryLimit > 100 {
		q.HistoryLimit = 100
	}
	return nil
}

// LedgerEntryDTO - DTO записи леджера.
type LedgerEntryDTO struct {
	// ID - ID записи.
	ID string `json:"id"`

	// Type - тип движения: stake, refund, reward, penalty.
	Type string `json:"type"`

	// SignedAmount - влияние на баланс (стейк отрицательный).
	SignedAmount int64 `json:"signed_amount"`

	// TaskID - задача-источник движения (если есть).
	TaskID string `json:"task_id,omitempty"`

	// Memo - причина движения.
	Memo string `json:"memo,omitempty"`

	// CreatedAt - когда запись создана.
	CreatedAt time.Time `json:"created_at"`
}

// GetBalanceResult содержит результат запроса баланса.
type GetBalanceResult struct {
	// UserID - ID участника.
	UserID string `json:"user_id"`

	// Available - доступный баланс.
	Available int64 `json:"available"`

	// Locked - заблокировано в активных стейках.
	Locked int64 `json:"locked"`

	// History - последние движения, новые первыми.
	History []LedgerEntryDTO `json:"history"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetBalanceHandler обрабатывает GetBalanceQuery.
type GetBalanceHandler struct {
	ledgerRepo ledger.Repository
}

// NewGetBalanceHandler создаёт новый GetBalanceHandler.
func NewGetBalanceHandler(ledgerRepo ledger.Repository) *GetBalanceHandler {
	return &GetBalanceHandler{ledgerRepo: ledgerRepo}
}

// Handle выполняет запрос баланса.
func (h *GetBalanceHandler) Handle(ctx context.Context, q GetBalanceQuery) (*GetBalanceResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	balance, err := h.ledgerRepo.GetBalance(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_balance: failed to derive balance: %w", err)
	}

	entries, err := h.ledgerRepo.List(ctx, ledger.ListFilter{
		UserID: q.UserID,
		Status: ledger.StatusConfirmed,
		Limit:  q.HistoryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("get_balance: failed to list entries: %w", err)
	}

	result := &GetBalanceResult{
		UserID:    q.UserID,
		Available: int64(balance.Available),
		Locked:    int64(balance.Locked),
		History:   make([]LedgerEntryDTO, 0, len(entries)),
	}
	for _, e := range entries {
		result.History = append(result.History, LedgerEntryDTO{
			ID:           e.ID,
			Type:         string(e.Type),
			SignedAmount: e.SignedAmount(),
			TaskID:       e.TaskID,
			Memo:         e.Memo,
			CreatedAt:    e.CreatedAt,
		})
	}

	return result, nil
}

package profile

import (
	"context"
	"time"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// ListOptions - параметры выборки профилей.
type ListOptions struct {
	// Role фильтрует по роли (пустая строка - без фильтра).
	Role Role

	// OnlyActive исключает деактивированные профили.
	OnlyActive bool

	// Limit ограничивает размер выборки (0 - без ограничения).
	Limit int

	// Offset - смещение для пагинации.
	Offset int
}

// Repository определяет контракт хранилища профилей.
// Реализация живёт в infrastructure слое (PostgreSQL).
type Repository interface {
	// Create сохраняет новый профиль.
	// Возвращает ErrProfileAlreadyExists, если кошелёк уже зарегистрирован.
	Create(ctx context.Context, p *Profile) error

	// GetByID возвращает профиль по внутреннему ID.
	// Возвращает ErrProfileNotFound, если не найден.
	GetByID(ctx context.Context, id string) (*Profile, error)

	// GetByWallet возвращает профиль по адресу кошелька.
	// Адрес должен быть нормализован (нижний регистр).
	GetByWallet(ctx context.Context, wallet shared.WalletAddress) (*Profile, error)

	// Update сохраняет изменённый профиль.
	Update(ctx context.Context, p *Profile) error

	// UpdateTokenBalance обновляет кешированный баланс одним запросом.
	UpdateTokenBalance(ctx context.Context, id string, balance shared.Amount) error

	// List возвращает профили по фильтру.
	List(ctx context.Context, opts ListOptions) ([]*Profile, error)

	// ListActiveStudents возвращает активных студентов для фоновых пересчётов.
	ListActiveStudents(ctx context.Context, limit, offset int) ([]*Profile, error)

	// Count возвращает число профилей по фильтру.
	Count(ctx context.Context, opts ListOptions) (int, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Cache определяет контракт кеша профилей (Redis).
// Кеш - только оптимизация чтения, источник истины - Repository.
type Cache interface {
	// Get возвращает профиль из кеша (nil, nil - промах).
	Get(ctx context.Context, id string) (*Profile, error)

	// Set сохраняет профиль в кеш с TTL.
	Set(ctx context.Context, p *Profile, ttl time.Duration) error

	// Invalidate удаляет профиль из кеша.
	Invalidate(ctx context.Context, id string) error
}

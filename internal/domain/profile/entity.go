// Package profile содержит доменную модель участника маркетплейса EduStake.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Username представляет отображаемое имя участника.
type Username string

// IsValid проверяет корректность имени.
func (u Username) IsValid() bool {
	s := string(u)
	return len(s) == 0 || (len(s) >= 2 && len(s) <= 50 && !strings.ContainsAny(s, "\t\n\r"))
}

// String возвращает строковое представление.
func (u Username) String() string {
	return string(u)
}

// Reputation представляет репутацию участника (0.0 - 100.0).
// Монотонно корректируется результатами ревью: экспоненциальное
// скользящее среднее, новая оценка весит 30%.
type Reputation float64

// reputationSmoothing - вес новой оценки в скользящем среднем.
const reputationSmoothing = 0.3

// IsValid проверяет, что репутация в допустимом диапазоне.
func (r Reputation) IsValid() bool {
	return r >= 0.0 && r <= 100.0
}

// ApplyScore возвращает новую репутацию после оценки ревью (1-5).
// Оценка масштабируется на шкалу 0-100 (5 звёзд = 100).
func (r Reputation) ApplyScore(score int) Reputation {
	scaled := float64(score) * 20.0
	next := float64(r)*(1.0-reputationSmoothing) + scaled*reputationSmoothing
	if next < 0 {
		next = 0
	}
	if next > 100 {
		next = 100
	}
	return Reputation(next)
}

// IsReputable возвращает true, если репутация выше порога доверия.
// Порог используется фактором рекомендаций "reputable_teacher".
func (r Reputation) IsReputable() bool {
	return r > 50.0
}

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Role определяет роль участника на маркетплейсе.
// Закрытый вариант вместо нетипизированного состояния сессии:
// роль известна статически, проверки наличия полей не нужны.
type Role string

const (
	// RoleTeacher - публикует задачи и проводит ревью.
	RoleTeacher Role = "teacher"
	// RoleStudent - стейкает и выполняет задачи.
	RoleStudent Role = "student"
	// RoleBoth - и то, и другое.
	RoleBoth Role = "both"
)

// IsValid проверяет корректность роли.
func (r Role) IsValid() bool {
	switch r {
	case RoleTeacher, RoleStudent, RoleBoth:
		return true
	default:
		return false
	}
}

// CanTeach возвращает true, если участник может публиковать задачи и отвечать на вопросы.
func (r Role) CanTeach() bool {
	return r == RoleTeacher || r == RoleBoth
}

// CanStudy возвращает true, если участник может записываться на задачи.
func (r Role) CanStudy() bool {
	return r == RoleStudent || r == RoleBoth
}

// SkillTier определяет уровень студента, вычисляемый из числа завершённых задач.
type SkillTier string

const (
	// TierBeginner - менее 5 завершённых задач.
	TierBeginner SkillTier = "beginner"
	// TierIntermediate - от 5 до 19 завершённых задач.
	TierIntermediate SkillTier = "intermediate"
	// TierAdvanced - 20 и более завершённых задач.
	TierAdvanced SkillTier = "advanced"
)

// CalculateSkillTier вычисляет уровень по числу завершённых задач.
func CalculateSkillTier(completed int) SkillTier {
	switch {
	case completed < 5:
		return TierBeginner
	case completed < 20:
		return TierIntermediate
	default:
		return TierAdvanced
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile - участник маркетплейса, привязанный к адресу кошелька.
// Создаётся при первом подключении кошелька; никогда не удаляется,
// только деактивируется.
type Profile struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID string

	// WalletAddress - адрес кошелька (уникальный, в нижнем регистре).
	WalletAddress shared.WalletAddress

	// Role - роль участника.
	Role Role

	// Username - отображаемое имя (опционально).
	Username Username

	// Bio - краткое описание (опционально).
	Bio string

	// AvatarURL - ссылка на аватар (опционально).
	AvatarURL string

	// Reputation - репутация, скорректированная результатами ревью.
	Reputation Reputation

	// TotalTasksCreated - сколько задач опубликовано (для учителей).
	TotalTasksCreated int

	// TotalTasksCompleted - сколько задач завершено с оценкой (для студентов).
	TotalTasksCompleted int

	// TotalTasksAttempted - сколько попыток было начато.
	TotalTasksAttempted int

	// TokenBalance - кешированный баланс EDU. Источник истины - леджер;
	// поле обновляется только из подтверждённых записей леджера.
	TokenBalance shared.Amount

	// Active - false после деактивации.
	Active bool

	// CreatedAt - когда профиль создан.
	CreatedAt time.Time

	// UpdatedAt - когда профиль последний раз обновлялся.
	UpdatedAt time.Time
}

// NewProfile создаёт новый профиль для адреса кошелька.
func NewProfile(id string, wallet shared.WalletAddress, role Role, username Username) (*Profile, error) {
	if id == "" {
		return nil, errors.New("profile: id is required")
	}
	if !wallet.IsValid() {
		return nil, shared.ErrInvalidWalletAddress
	}
	if !role.IsValid() {
		return nil, shared.ErrInvalidRole
	}
	if !username.IsValid() {
		return nil, fmt.Errorf("profile: invalid username %q", username)
	}

	now := time.Now().UTC()
	return &Profile{
		ID:            id,
		WalletAddress: wallet,
		Role:          role,
		Username:      username,
		Reputation:    Reputation(50.0), // нейтральная стартовая репутация
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// SkillTier возвращает текущий уровень студента.
func (p *Profile) SkillTier() SkillTier {
	return CalculateSkillTier(p.TotalTasksCompleted)
}

// RecordAttempt фиксирует начало новой попытки.
func (p *Profile) RecordAttempt() {
	p.TotalTasksAttempted++
	p.UpdatedAt = time.Now().UTC()
}

// RecordCompletion фиксирует завершение задачи с проходной оценкой.
func (p *Profile) RecordCompletion() {
	p.TotalTasksCompleted++
	p.UpdatedAt = time.Now().UTC()
}

// RecordTaskCreated фиксирует публикацию новой задачи.
func (p *Profile) RecordTaskCreated() {
	p.TotalTasksCreated++
	p.UpdatedAt = time.Now().UTC()
}

// ApplyReviewScore корректирует репутацию после ревью.
func (p *Profile) ApplyReviewScore(score int) error {
	if score < 1 || score > 5 {
		return shared.ErrInvalidReviewScore
	}
	p.Reputation = p.Reputation.ApplyScore(score)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// SetTokenBalance обновляет кешированный баланс из леджера.
func (p *Profile) SetTokenBalance(balance shared.Amount) {
	p.TokenBalance = balance
	p.UpdatedAt = time.Now().UTC()
}

// Deactivate деактивирует профиль. Профили не удаляются.
func (p *Profile) Deactivate() {
	p.Active = false
	p.UpdatedAt = time.Now().UTC()
}

// Validate проверяет инварианты профиля.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return errors.New("profile: id is required")
	}
	if !p.WalletAddress.IsValid() {
		return shared.ErrInvalidWalletAddress
	}
	if !p.Role.IsValid() {
		return shared.ErrInvalidRole
	}
	if !p.Reputation.IsValid() {
		return fmt.Errorf("profile: reputation out of range: %f", float64(p.Reputation))
	}
	if p.TotalTasksCompleted > p.TotalTasksAttempted {
		return fmt.Errorf("profile: completed (%d) cannot exceed attempted (%d)",
			p.TotalTasksCompleted, p.TotalTasksAttempted)
	}
	if p.TokenBalance < 0 {
		return shared.ErrNegativeValue
	}
	return nil
}

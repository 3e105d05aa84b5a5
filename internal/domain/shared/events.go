// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the marketplace.
const (
	// Profile events
	EventProfileCreated     EventType = "profile.created"
	EventProfileUpdated     EventType = "profile.updated"
	EventProfileDeactivated EventType = "profile.deactivated"

	// Task events
	EventTaskCreated   EventType = "task.created"
	EventTaskCancelled EventType = "task.cancelled"
	EventTaskCompleted EventType = "task.completed"
	EventTaskExpired   EventType = "task.expired"

	// Enrollment events
	EventStudentEnrolled     EventType = "enrollment.enrolled"
	EventSolutionSubmitted   EventType = "enrollment.submitted"
	EventEnrollmentReviewed  EventType = "enrollment.reviewed"
	EventEnrollmentCancelled EventType = "enrollment.cancelled"

	// Ledger events
	EventStakeLocked       EventType = "ledger.stake_locked"
	EventSettlementApplied EventType = "ledger.settlement_applied"

	// Badge events
	EventBadgeMinted EventType = "badge.minted"

	// Question/answer events (typed change feed for the realtime channel)
	EventQuestionChanged EventType = "question.changed"
	EventAnswerChanged   EventType = "answer.changed"

	// Recommendation events
	EventRecommendationsRefreshed EventType = "recommendation.refreshed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler processes a single event.
type EventHandler func(event Event) error

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(event Event) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher

	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error

	// Close shuts the bus down, waiting for in-flight handlers.
	Close() error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// Payload implements Event interface. Typed events override this with
// their full payload.
func (e BaseEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"type":         string(e.Type),
		"aggregate_id": e.AggregateId,
	}
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Enrollment Events
// ═══════════════════════════════════════════════════════════════════════════

// StudentEnrolledEvent is emitted when a student enrolls in a task.
type StudentEnrolledEvent struct {
	BaseEvent
	TaskID      string `json:"task_id"`
	StudentID   string `json:"student_id"`
	StakeLocked int64  `json:"stake_locked"`
}

// NewStudentEnrolledEvent creates a new enrollment event.
func NewStudentEnrolledEvent(enrollmentID, taskID, studentID string, stakeLocked int64) StudentEnrolledEvent {
	return StudentEnrolledEvent{
		BaseEvent:   NewBaseEvent(EventStudentEnrolled, enrollmentID),
		TaskID:      taskID,
		StudentID:   studentID,
		StakeLocked: stakeLocked,
	}
}

// Payload implements Event interface.
func (e StudentEnrolledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"task_id":      e.TaskID,
		"student_id":   e.StudentID,
		"stake_locked": e.StakeLocked,
	}
}

// SolutionSubmittedEvent is emitted when a student submits a solution.
type SolutionSubmittedEvent struct {
	BaseEvent
	TaskID    string `json:"task_id"`
	StudentID string `json:"student_id"`
}

// NewSolutionSubmittedEvent creates a new submission event.
func NewSolutionSubmittedEvent(enrollmentID, taskID, studentID string) SolutionSubmittedEvent {
	return SolutionSubmittedEvent{
		BaseEvent: NewBaseEvent(EventSolutionSubmitted, enrollmentID),
		TaskID:    taskID,
		StudentID: studentID,
	}
}

// Payload implements Event interface.
func (e SolutionSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"task_id":    e.TaskID,
		"student_id": e.StudentID,
	}
}

// EnrollmentReviewedEvent is emitted when a teacher reviews a submission.
type EnrollmentReviewedEvent struct {
	BaseEvent
	TaskID        string `json:"task_id"`
	StudentID     string `json:"student_id"`
	Score         int    `json:"score"`
	BadgeEligible bool   `json:"badge_eligible"`
}

// NewEnrollmentReviewedEvent creates a new review event.
func NewEnrollmentReviewedEvent(enrollmentID, taskID, studentID string, score int, badgeEligible bool) EnrollmentReviewedEvent {
	return EnrollmentReviewedEvent{
		BaseEvent:     NewBaseEvent(EventEnrollmentReviewed, enrollmentID),
		TaskID:        taskID,
		StudentID:     studentID,
		Score:         score,
		BadgeEligible: badgeEligible,
	}
}

// Payload implements Event interface.
func (e EnrollmentReviewedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"task_id":        e.TaskID,
		"student_id":     e.StudentID,
		"score":          e.Score,
		"badge_eligible": e.BadgeEligible,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// SettlementAppliedEvent is emitted when a review settlement batch commits.
type SettlementAppliedEvent struct {
	BaseEvent
	EnrollmentID string `json:"enrollment_id"`
	StudentID    string `json:"student_id"`
	TeacherID    string `json:"teacher_id"`
	Refund       int64  `json:"refund"`
	Reward       int64  `json:"reward"`
	Penalty      int64  `json:"penalty"`
}

// NewSettlementAppliedEvent creates a new settlement event.
func NewSettlementAppliedEvent(enrollmentID, studentID, teacherID string, refund, reward, penalty int64) SettlementAppliedEvent {
	return SettlementAppliedEvent{
		BaseEvent:    NewBaseEvent(EventSettlementApplied, enrollmentID),
		EnrollmentID: enrollmentID,
		StudentID:    studentID,
		TeacherID:    teacherID,
		Refund:       refund,
		Reward:       reward,
		Penalty:      penalty,
	}
}

// Payload implements Event interface.
func (e SettlementAppliedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"enrollment_id": e.EnrollmentID,
		"student_id":    e.StudentID,
		"teacher_id":    e.TeacherID,
		"refund":        e.Refund,
		"reward":        e.Reward,
		"penalty":       e.Penalty,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Badge Events
// ═══════════════════════════════════════════════════════════════════════════

// BadgeMintedEvent is emitted when the minting workflow persists a badge.
type BadgeMintedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	TaskID    string `json:"task_id"`
	TokenID   string `json:"token_id"`
	Skill     string `json:"skill"`
}

// NewBadgeMintedEvent creates a new badge minted event.
func NewBadgeMintedEvent(badgeID, studentID, taskID, tokenID, skill string) BadgeMintedEvent {
	return BadgeMintedEvent{
		BaseEvent: NewBaseEvent(EventBadgeMinted, badgeID),
		StudentID: studentID,
		TaskID:    taskID,
		TokenID:   tokenID,
		Skill:     skill,
	}
}

// Payload implements Event interface.
func (e BadgeMintedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"task_id":    e.TaskID,
		"token_id":   e.TokenID,
		"skill":      e.Skill,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Change Events (question/answer realtime feed)
// ═══════════════════════════════════════════════════════════════════════════

// ChangeKind describes what happened to a row.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// RowChangedEvent carries a typed row change for incremental consumers.
// The Row payload holds the changed row serialized as a map; consumers
// apply it as a merge rather than refetching the full list.
type RowChangedEvent struct {
	BaseEvent
	Kind      ChangeKind             `json:"kind"`
	TaskID    string                 `json:"task_id"`
	StudentID string                 `json:"student_id"`
	Row       map[string]interface{} `json:"row"`
}

// NewRowChangedEvent creates a change event for the given collection event type.
func NewRowChangedEvent(eventType EventType, kind ChangeKind, rowID, taskID, studentID string, row map[string]interface{}) RowChangedEvent {
	return RowChangedEvent{
		BaseEvent: NewBaseEvent(eventType, rowID),
		Kind:      kind,
		TaskID:    taskID,
		StudentID: studentID,
		Row:       row,
	}
}

// Payload implements Event interface.
func (e RowChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"kind":       string(e.Kind),
		"task_id":    e.TaskID,
		"student_id": e.StudentID,
		"row":        e.Row,
	}
}

// Package question contains the Q&A thread between an enrolled student
// and the teaching side of the marketplace. Threads are scoped to one
// (task, student) pair and ordered by creation time.
package question

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: QUESTION
// ══════════════════════════════════════════════════════════════════════════════

// Question is one student question with its full answer history.
// Whether it is answered is derived from the Answers slice, never
// stored as a separate flag.
type Question struct {
	ID        string
	TaskID    string
	StudentID string

	QuestionText string

	// Answers holds every recorded answer, oldest first.
	Answers []*Answer

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Answer is one reply to a question. Every answer is kept; re-answering
// appends rather than overwrites.
type Answer struct {
	ID          string
	QuestionID  string
	ResponderID string

	// IsFromTeacher marks answers written by the task's own teacher,
	// as opposed to another mentor.
	IsFromTeacher bool

	AnswerText string
	CreatedAt  time.Time
}

// NewQuestion creates an unanswered question.
func NewQuestion(id, taskID, studentID, text string) (*Question, error) {
	if id == "" || taskID == "" || studentID == "" {
		return nil, errors.New("question: id, task id and student id are required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, shared.ErrEmptyQuestionText
	}

	now := time.Now().UTC()
	return &Question{
		ID:           id,
		TaskID:       taskID,
		StudentID:    studentID,
		QuestionText: text,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NewAnswer creates an answer to the given question.
func NewAnswer(id, questionID, responderID, text string, fromTeacher bool) (*Answer, error) {
	if id == "" || questionID == "" || responderID == "" {
		return nil, errors.New("question: answer id, question id and responder id are required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, shared.ErrEmptyAnswerText
	}

	return &Answer{
		ID:            id,
		QuestionID:    questionID,
		ResponderID:   responderID,
		IsFromTeacher: fromTeacher,
		AnswerText:    text,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// IsAnswered reports whether at least one answer has been recorded.
func (q *Question) IsAnswered() bool {
	return len(q.Answers) > 0
}

// AddAnswer appends an answer to the history, keeping oldest-first order.
func (q *Question) AddAnswer(a *Answer) error {
	if a == nil {
		return errors.New("question: answer is required")
	}
	if a.QuestionID != q.ID {
		return errors.New("question: answer belongs to a different question")
	}

	q.Answers = append(q.Answers, a)
	sort.SliceStable(q.Answers, func(i, j int) bool {
		return q.Answers[i].CreatedAt.Before(q.Answers[j].CreatedAt)
	})
	q.UpdatedAt = time.Now().UTC()
	return nil
}

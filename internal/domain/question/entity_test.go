package question

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

func TestNewQuestion(t *testing.T) {
	q, err := NewQuestion("q1", "task1", "student1", "  How do I start?  ")
	assert.NoError(t, err)
	assert.Equal(t, "How do I start?", q.QuestionText)
	assert.False(t, q.IsAnswered())
}

func TestNewQuestion_RejectsEmptyText(t *testing.T) {
	_, err := NewQuestion("q1", "task1", "student1", "   ")
	assert.ErrorIs(t, err, shared.ErrEmptyQuestionText)
}

func TestNewAnswer(t *testing.T) {
	a, err := NewAnswer("a1", "q1", "teacher1", "  Read the brief first.  ", true)
	assert.NoError(t, err)
	assert.Equal(t, "Read the brief first.", a.AnswerText)
	assert.True(t, a.IsFromTeacher)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestNewAnswer_RejectsEmptyText(t *testing.T) {
	_, err := NewAnswer("a1", "q1", "teacher1", "   ", true)
	assert.ErrorIs(t, err, shared.ErrEmptyAnswerText)
}

func TestNewAnswer_RequiresIDs(t *testing.T) {
	_, err := NewAnswer("", "q1", "teacher1", "text", true)
	assert.Error(t, err)

	_, err = NewAnswer("a1", "", "teacher1", "text", true)
	assert.Error(t, err)
}

func TestAddAnswer_KeepsHistoryOrdered(t *testing.T) {
	q, err := NewQuestion("q1", "task1", "student1", "How do I start?")
	assert.NoError(t, err)

	first, err := NewAnswer("a1", "q1", "teacher1", "First answer.", true)
	assert.NoError(t, err)
	second, err := NewAnswer("a2", "q1", "mentor1", "Second answer.", false)
	assert.NoError(t, err)

	// Вторая запись раньше первой: порядок должен восстановиться по времени.
	first.CreatedAt = time.Now().UTC()
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	assert.NoError(t, q.AddAnswer(second))
	assert.NoError(t, q.AddAnswer(first))

	assert.True(t, q.IsAnswered())
	assert.Len(t, q.Answers, 2)
	assert.Equal(t, "First answer.", q.Answers[0].AnswerText)
	assert.Equal(t, "Second answer.", q.Answers[1].AnswerText)
}

func TestAddAnswer_RejectsForeignAnswer(t *testing.T) {
	q, err := NewQuestion("q1", "task1", "student1", "How do I start?")
	assert.NoError(t, err)

	foreign, err := NewAnswer("a1", "q2", "teacher1", "Wrong thread.", true)
	assert.NoError(t, err)

	assert.Error(t, q.AddAnswer(foreign))
	assert.False(t, q.IsAnswered())
}

package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

func newSyncBus(t *testing.T) *InMemoryEventBus {
	t.Helper()
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func questionInserted(id, taskID, studentID, text string, at time.Time) shared.RowChangedEvent {
	return shared.NewRowChangedEvent(shared.EventQuestionChanged, shared.ChangeInsert,
		id, taskID, studentID, map[string]interface{}{
			"id":            id,
			"task_id":       taskID,
			"student_id":    studentID,
			"question_text": text,
			"created_at":    at,
		})
}

func answerRecorded(id, questionID, taskID, studentID, answer, responderID string, fromTeacher bool, at time.Time) shared.RowChangedEvent {
	return shared.NewRowChangedEvent(shared.EventAnswerChanged, shared.ChangeInsert,
		id, taskID, studentID, map[string]interface{}{
			"id":              id,
			"question_id":     questionID,
			"answer_text":     answer,
			"answered_by":     responderID,
			"is_from_teacher": fromTeacher,
			"created_at":      at,
		})
}

func TestQAChannel_DeliversMergedThread(t *testing.T) {
	bus := newSyncBus(t)
	channel := NewQAChannel(bus, nil)
	require.NoError(t, channel.Start())
	defer channel.Close()

	sub, err := channel.Subscribe("task1", "student1", nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Initial snapshot is empty.
	initial := <-sub.Updates()
	assert.Empty(t, initial)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(questionInserted("q2", "task1", "student1", "What is a mutex?", base.Add(time.Minute))))
	require.NoError(t, bus.Publish(questionInserted("q1", "task1", "student1", "What is a goroutine?", base)))

	<-sub.Updates()
	thread := <-sub.Updates()
	require.Len(t, thread, 2)

	// Ordered by creation time, not arrival.
	assert.Equal(t, "q1", thread[0].ID)
	assert.Equal(t, "What is a goroutine?", thread[0].QuestionText)
	assert.False(t, thread[0].IsAnswered)
	assert.Equal(t, "q2", thread[1].ID)
}

func TestQAChannel_AnswerMergesIntoExistingQuestion(t *testing.T) {
	bus := newSyncBus(t)
	channel := NewQAChannel(bus, nil)
	require.NoError(t, channel.Start())
	defer channel.Close()

	sub, err := channel.Subscribe("task1", "student1", nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	<-sub.Updates()

	asked := time.Now().UTC()
	require.NoError(t, bus.Publish(questionInserted("q1", "task1", "student1", "Why does Submit trim whitespace?", asked)))
	<-sub.Updates()

	require.NoError(t, bus.Publish(answerRecorded("a1", "q1", "task1", "student1",
		"Blank submissions are rejected.", "teacher1", true, asked.Add(time.Minute))))
	thread := <-sub.Updates()

	require.Len(t, thread, 1)
	assert.Equal(t, "Why does Submit trim whitespace?", thread[0].QuestionText)
	assert.True(t, thread[0].IsAnswered)
	assert.Equal(t, asked, thread[0].CreatedAt)
	require.Len(t, thread[0].Answers, 1)
	assert.Equal(t, "Blank submissions are rejected.", thread[0].Answers[0].AnswerText)
	assert.Equal(t, "teacher1", thread[0].Answers[0].ResponderID)
	assert.True(t, thread[0].Answers[0].IsFromTeacher)
}

func TestQAChannel_KeepsAnswerHistoryOrdered(t *testing.T) {
	bus := newSyncBus(t)
	channel := NewQAChannel(bus, nil)
	require.NoError(t, channel.Start())
	defer channel.Close()

	sub, err := channel.Subscribe("task1", "student1", nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	<-sub.Updates()

	asked := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(questionInserted("q1", "task1", "student1", "Which pattern fits here?", asked)))
	<-sub.Updates()

	// The later answer arrives first; the snapshot must reorder by time.
	require.NoError(t, bus.Publish(answerRecorded("a2", "q1", "task1", "student1",
		"A channel reads better.", "mentor1", false, asked.Add(2*time.Minute))))
	<-sub.Updates()
	require.NoError(t, bus.Publish(answerRecorded("a1", "q1", "task1", "student1",
		"Use a mutex.", "teacher1", true, asked.Add(time.Minute))))
	thread := <-sub.Updates()

	require.Len(t, thread, 1)
	require.Len(t, thread[0].Answers, 2)
	assert.Equal(t, "Use a mutex.", thread[0].Answers[0].AnswerText)
	assert.True(t, thread[0].Answers[0].IsFromTeacher)
	assert.Equal(t, "A channel reads better.", thread[0].Answers[1].AnswerText)
	assert.False(t, thread[0].Answers[1].IsFromTeacher)
}

func TestQAChannel_AnswerBeforeQuestionStillMerges(t *testing.T) {
	bus := newSyncBus(t)
	channel := NewQAChannel(bus, nil)
	require.NoError(t, channel.Start())
	defer channel.Close()

	sub, err := channel.Subscribe("task1", "student1", nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	<-sub.Updates()

	asked := time.Now().UTC()
	require.NoError(t, bus.Publish(answerRecorded("a1", "q1", "task1", "student1",
		"Early answer.", "teacher1", true, asked.Add(time.Minute))))
	early := <-sub.Updates()
	require.Len(t, early, 1)
	assert.Equal(t, "q1", early[0].ID)
	assert.Empty(t, early[0].QuestionText)

	require.NoError(t, bus.Publish(questionInserted("q1", "task1", "student1", "What was the question?", asked)))
	thread := <-sub.Updates()

	require.Len(t, thread, 1)
	assert.Equal(t, "What was the question?", thread[0].QuestionText)
	require.Len(t, thread[0].Answers, 1)
	assert.Equal(t, "Early answer.", thread[0].Answers[0].AnswerText)
}

func TestQAChannel_IsolatesThreads(t *testing.T) {
	bus := newSyncBus(t)
	channel := NewQAChannel(bus, nil)
	require.NoError(t, channel.Start())
	defer channel.Close()

	mine, err := channel.Subscribe("task1", "student1", nil)
	require.NoError(t, err)
	defer mine.Unsubscribe()
	other, err := channel.Subscribe("task1", "student2", nil)
	require.NoError(t, err)
	defer other.Unsubscribe()
	<-mine.Updates()
	<-other.Updates()

	require.NoError(t, bus.Publish(questionInserted("q1", "task1", "student2", "Is recursion allowed?", time.Now().UTC())))

	thread := <-other.Updates()
	require.Len(t, thread, 1)

	select {
	case got := <-mine.Updates():
		t.Fatalf("unexpected delivery to foreign thread: %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQAChannel_UnsubscribeStopsDelivery(t *testing.T) {
	bus := newSyncBus(t)
	channel := NewQAChannel(bus, nil)
	require.NoError(t, channel.Start())
	defer channel.Close()

	sub, err := channel.Subscribe("task1", "student1", nil)
	require.NoError(t, err)
	<-sub.Updates()

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	_, open := <-sub.Updates()
	assert.False(t, open)

	// Publishing after unsubscribe must not panic on the closed channel.
	require.NoError(t, bus.Publish(questionInserted("q1", "task1", "student1", "Anyone there?", time.Now().UTC())))
}

func TestQAChannel_SeedDoesNotOverrideLiveEntries(t *testing.T) {
	bus := newSyncBus(t)
	channel := NewQAChannel(bus, nil)
	require.NoError(t, channel.Start())
	defer channel.Close()

	asked := time.Now().UTC()
	seed := []ThreadEntry{{
		ID:           "q1",
		TaskID:       "task1",
		StudentID:    "student1",
		QuestionText: "Loaded from the repository",
		CreatedAt:    asked,
	}}

	sub, err := channel.Subscribe("task1", "student1", seed)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	initial := <-sub.Updates()
	require.Len(t, initial, 1)
	assert.Equal(t, "Loaded from the repository", initial[0].QuestionText)

	// A second subscriber reseeding the same thread must not clobber it.
	stale := []ThreadEntry{{ID: "q1", TaskID: "task1", StudentID: "student1", QuestionText: "stale copy", CreatedAt: asked}}
	second, err := channel.Subscribe("task1", "student1", stale)
	require.NoError(t, err)
	defer second.Unsubscribe()

	snapshot := <-second.Updates()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "Loaded from the repository", snapshot[0].QuestionText)
}

func TestQAChannel_CloseReleasesSubscribers(t *testing.T) {
	bus := newSyncBus(t)
	channel := NewQAChannel(bus, nil)
	require.NoError(t, channel.Start())

	sub, err := channel.Subscribe("task1", "student1", nil)
	require.NoError(t, err)
	<-sub.Updates()

	channel.Close()

	_, open := <-sub.Updates()
	assert.False(t, open)

	_, err = channel.Subscribe("task1", "student1", nil)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edustake/edustake-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QA CHANNEL
// ══════════════════════════════════════════════════════════════════════════════

// ErrChannelClosed is returned when subscribing on a closed channel.
var ErrChannelClosed = errors.New("qa channel is closed")

// ThreadEntry is one question in a thread, as delivered to subscribers,
// with its full answer history. IsAnswered is recomputed from the
// answers on every delivery and never trusted from the incoming row.
type ThreadEntry struct {
	ID           string
	TaskID       string
	StudentID    string
	QuestionText string
	Answers      []AnswerEntry
	IsAnswered   bool
	CreatedAt    time.Time
}

// AnswerEntry is one answer inside a ThreadEntry, ordered by creation
// time ascending.
type AnswerEntry struct {
	ID            string
	ResponderID   string
	IsFromTeacher bool
	AnswerText    string
	CreatedAt     time.Time
}

// Subscription delivers thread snapshots for one (task, student) pair.
// Callers must release it with Unsubscribe when done, including on
// error paths, otherwise the channel keeps buffering for them.
type Subscription struct {
	id        string
	taskID    string
	studentID string
	updates   chan []ThreadEntry
	channel   *QAChannel
	once      sync.Once
}

// Updates returns the stream of merged thread snapshots, questions
// ordered by creation time ascending.
func (s *Subscription) Updates() <-chan []ThreadEntry {
	return s.updates
}

// Unsubscribe releases the subscription and closes the updates channel.
// Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.channel.remove(s)
	})
}

// QAChannel fans question/answer changes out to per-thread subscribers.
// It consumes row change events from the bus, merges them into
// per-(task, student) thread state and delivers the full ordered thread
// on every change. Merges for one thread are serialized under the
// thread's mutex.
type QAChannel struct {
	bus    shared.EventBus
	logger *slog.Logger

	mu      sync.RWMutex
	threads map[threadKey]*threadState
	closed  bool
}

type threadKey struct {
	taskID    string
	studentID string
}

type threadState struct {
	mu          sync.Mutex
	entries     map[string]ThreadEntry
	subscribers map[string]*Subscription
}

// NewQAChannel creates a channel bound to the given event bus. Start
// must be called before events are consumed.
func NewQAChannel(bus shared.EventBus, logger *slog.Logger) *QAChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &QAChannel{
		bus:     bus,
		logger:  logger,
		threads: make(map[threadKey]*threadState),
	}
}

// Start subscribes the channel to question and answer change events.
func (c *QAChannel) Start() error {
	if err := c.bus.Subscribe(shared.EventQuestionChanged, c.handleChange); err != nil {
		return fmt.Errorf("qa channel: subscribe questions: %w", err)
	}
	if err := c.bus.Subscribe(shared.EventAnswerChanged, c.handleChange); err != nil {
		return fmt.Errorf("qa channel: subscribe answers: %w", err)
	}
	return nil
}

// Subscribe opens a subscription for one (task, student) thread,
// optionally seeded with the thread's current entries.
func (c *QAChannel) Subscribe(taskID, studentID string, seed []ThreadEntry) (*Subscription, error) {
	if taskID == "" || studentID == "" {
		return nil, errors.New("qa channel: task id and student id are required")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrChannelClosed
	}
	key := threadKey{taskID: taskID, studentID: studentID}
	state, ok := c.threads[key]
	if !ok {
		state = &threadState{
			entries:     make(map[string]ThreadEntry),
			subscribers: make(map[string]*Subscription),
		}
		c.threads[key] = state
	}
	c.mu.Unlock()

	sub := &Subscription{
		id:        uuid.NewString(),
		taskID:    taskID,
		studentID: studentID,
		updates:   make(chan []ThreadEntry, 16),
		channel:   c,
	}

	state.mu.Lock()
	for _, entry := range seed {
		if _, present := state.entries[entry.ID]; !present {
			state.entries[entry.ID] = entry
		}
	}
	state.subscribers[sub.id] = sub
	snapshot := state.snapshotLocked()
	state.mu.Unlock()

	sub.updates <- snapshot
	return sub, nil
}

// handleChange merges one row change into its thread and fans out.
func (c *QAChannel) handleChange(event shared.Event) error {
	change, ok := event.(shared.RowChangedEvent)
	if !ok {
		if ptr, isPtr := event.(*shared.RowChangedEvent); isPtr {
			change = *ptr
		} else {
			// Remote events arrive as generic payloads.
			var err error
			change, err = rowChangeFromPayload(event)
			if err != nil {
				c.logger.Warn("qa channel: unreadable change event",
					"event_type", event.EventType(), "error", err)
				return nil
			}
		}
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrChannelClosed
	}
	state, ok := c.threads[threadKey{taskID: change.TaskID, studentID: change.StudentID}]
	c.mu.RUnlock()
	if !ok {
		// Nobody is watching this thread.
		return nil
	}

	state.mu.Lock()
	switch change.Kind {
	case shared.ChangeDelete:
		delete(state.entries, change.AggregateID())
	default:
		// Answer rows carry a question_id and merge into the parent
		// question's entry; question rows merge into their own.
		if questionID, ok := rowString(change.Row, "question_id"); ok && questionID != "" {
			entry := state.entries[questionID]
			entry.ID = questionID
			entry.TaskID = change.TaskID
			entry.StudentID = change.StudentID
			mergeAnswerRow(&entry, change.AggregateID(), change.Row)
			state.entries[questionID] = entry
		} else {
			entry := state.entries[change.AggregateID()]
			entry.ID = change.AggregateID()
			entry.TaskID = change.TaskID
			entry.StudentID = change.StudentID
			mergeRow(&entry, change.Row)
			state.entries[entry.ID] = entry
		}
	}
	snapshot := state.snapshotLocked()
	// Sends are non-blocking, so fan-out happens under the thread mutex.
	// This serializes delivery against Unsubscribe closing the channel.
	for _, sub := range state.subscribers {
		select {
		case sub.updates <- snapshot:
		default:
			c.logger.Warn("qa channel: dropping update for slow subscriber",
				"task_id", change.TaskID, "student_id", change.StudentID)
		}
	}
	state.mu.Unlock()
	return nil
}

// remove detaches a subscription and forgets the thread once it has no
// subscribers left.
func (c *QAChannel) remove(sub *Subscription) {
	key := threadKey{taskID: sub.taskID, studentID: sub.studentID}

	c.mu.Lock()
	state, ok := c.threads[key]
	c.mu.Unlock()
	if !ok {
		close(sub.updates)
		return
	}

	state.mu.Lock()
	delete(state.subscribers, sub.id)
	empty := len(state.subscribers) == 0
	close(sub.updates)
	state.mu.Unlock()

	if empty {
		c.mu.Lock()
		if st, still := c.threads[key]; still && st == state {
			delete(c.threads, key)
		}
		c.mu.Unlock()
	}
}

// Close releases every subscription.
func (c *QAChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	threads := c.threads
	c.threads = make(map[threadKey]*threadState)
	c.mu.Unlock()

	for _, state := range threads {
		state.mu.Lock()
		for _, sub := range state.subscribers {
			s := sub
			s.once.Do(func() { close(s.updates) })
		}
		state.subscribers = make(map[string]*Subscription)
		state.mu.Unlock()
	}
}

// snapshotLocked copies the thread ordered by created_at ascending with
// is_answered recomputed. Answer slices are copied, so a delivered
// snapshot never aliases the live state. Caller holds the thread mutex.
func (s *threadState) snapshotLocked() []ThreadEntry {
	out := make([]ThreadEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entry.Answers = append([]AnswerEntry(nil), entry.Answers...)
		sort.Slice(entry.Answers, func(i, j int) bool {
			if entry.Answers[i].CreatedAt.Equal(entry.Answers[j].CreatedAt) {
				return entry.Answers[i].ID < entry.Answers[j].ID
			}
			return entry.Answers[i].CreatedAt.Before(entry.Answers[j].CreatedAt)
		})
		entry.IsAnswered = len(entry.Answers) > 0
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Row decoding
// ─────────────────────────────────────────────────────────────────────────────

// mergeRow applies question row fields onto an entry, leaving absent
// fields alone.
func mergeRow(entry *ThreadEntry, row map[string]interface{}) {
	if v, ok := rowString(row, "question_text"); ok {
		entry.QuestionText = v
	}
	if v, ok := rowTime(row, "created_at"); ok {
		entry.CreatedAt = v
	}
}

// mergeAnswerRow applies an answer row onto the parent question's entry,
// updating the matching answer or appending a new one. The entry may be
// a placeholder when the answer event outruns the question event.
func mergeAnswerRow(entry *ThreadEntry, answerID string, row map[string]interface{}) {
	idx := -1
	for i := range entry.Answers {
		if entry.Answers[i].ID == answerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		entry.Answers = append(entry.Answers, AnswerEntry{ID: answerID})
		idx = len(entry.Answers) - 1
	}

	ans := &entry.Answers[idx]
	if v, ok := rowString(row, "answer_text"); ok {
		ans.AnswerText = v
	}
	if v, ok := rowString(row, "answered_by"); ok {
		ans.ResponderID = v
	}
	if v, ok := rowBool(row, "is_from_teacher"); ok {
		ans.IsFromTeacher = v
	}
	if v, ok := rowTime(row, "created_at"); ok {
		ans.CreatedAt = v
	}
}

func rowString(row map[string]interface{}, key string) (string, bool) {
	raw, present := row[key]
	if !present {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

func rowBool(row map[string]interface{}, key string) (bool, bool) {
	raw, present := row[key]
	if !present {
		return false, false
	}
	b, ok := raw.(bool)
	return b, ok
}

// rowTime accepts time.Time from local events and RFC3339 strings from
// events that went through the Redis envelope.
func rowTime(row map[string]interface{}, key string) (time.Time, bool) {
	raw, present := row[key]
	if !present {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

// rowChangeFromPayload rebuilds a RowChangedEvent from a generic event
// payload, as produced by RowChangedEvent.Payload.
func rowChangeFromPayload(event shared.Event) (shared.RowChangedEvent, error) {
	payload := event.Payload()

	kind, _ := payload["kind"].(string)
	taskID, _ := payload["task_id"].(string)
	studentID, _ := payload["student_id"].(string)
	row, _ := payload["row"].(map[string]interface{})
	if kind == "" || taskID == "" || studentID == "" {
		return shared.RowChangedEvent{}, errors.New("payload is not a row change")
	}

	return shared.NewRowChangedEvent(
		event.EventType(),
		shared.ChangeKind(kind),
		event.AggregateID(),
		taskID,
		studentID,
		row,
	), nil
}

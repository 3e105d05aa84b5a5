package command

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edustake/edustake-core/internal/domain/enrollment"
	"github.com/edustake/edustake-core/internal/domain/ledger"
	"github.com/edustake/edustake-core/internal/domain/profile"
	"github.com/edustake/edustake-core/internal/domain/question"
	"github.com/edustake/edustake-core/internal/domain/recommendation"
	"github.com/edustake/edustake-core/internal/domain/shared"
	"github.com/edustake/edustake-core/internal/domain/task"
)

// In-memory fakes shared by the command handler tests. They enforce the
// same invariants the postgres repositories enforce (capacity guard,
// unique active enrollment, balance guard) so concurrency tests mean
// something.

// ──────────────────────────────────────────────────────────────────────────────
// profile repository
// ──────────────────────────────────────────────────────────────────────────────

type fakeProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*profile.Profile

	failUpdates bool
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[string]*profile.Profile)}
}

func (r *fakeProfileRepo) Create(_ context.Context, p *profile.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.profiles {
		if existing.WalletAddress == p.WalletAddress {
			return shared.ErrProfileAlreadyExists
		}
	}
	cp := *p
	r.profiles[p.ID] = &cp
	return nil
}

func (r *fakeProfileRepo) GetByID(_ context.Context, id string) (*profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProfileRepo) GetByWallet(_ context.Context, wallet shared.WalletAddress) (*profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.WalletAddress == wallet {
			cp := *p
			return &cp, nil
		}
	}
	return nil, shared.ErrProfileNotFound
}

func (r *fakeProfileRepo) Update(_ context.Context, p *profile.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdates {
		return shared.ErrServiceUnavailable
	}
	if _, ok := r.profiles[p.ID]; !ok {
		return shared.ErrProfileNotFound
	}
	cp := *p
	r.profiles[p.ID] = &cp
	return nil
}

func (r *fakeProfileRepo) UpdateTokenBalance(_ context.Context, id string, balance shared.Amount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return shared.ErrProfileNotFound
	}
	p.TokenBalance = balance
	return nil
}

func (r *fakeProfileRepo) List(_ context.Context, opts profile.ListOptions) ([]*profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*profile.Profile
	for _, p := range r.profiles {
		if opts.Role != "" && p.Role != opts.Role {
			continue
		}
		if opts.OnlyActive && !p.Active {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeProfileRepo) ListActiveStudents(ctx context.Context, limit, offset int) ([]*profile.Profile, error) {
	return r.List(ctx, profile.ListOptions{Role: profile.RoleStudent, OnlyActive: true})
}

func (r *fakeProfileRepo) Count(ctx context.Context, opts profile.ListOptions) (int, error) {
	all, _ := r.List(ctx, opts)
	return len(all), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// task repository
// ──────────────────────────────────────────────────────────────────────────────

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[string]*task.Task)}
}

func (r *fakeTaskRepo) Create(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *fakeTaskRepo) GetByID(_ context.Context, id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, shared.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; !ok {
		return shared.ErrTaskNotFound
	}
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *fakeTaskRepo) UpdateStatus(_ context.Context, id string, expected, next task.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return shared.ErrTaskNotFound
	}
	if t.Status != expected {
		return shared.ErrConcurrentModification
	}
	t.Status = next
	return nil
}

func (r *fakeTaskRepo) ReserveSeat(_ context.Context, id string) (task.SeatCounters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return task.SeatCounters{}, shared.ErrTaskNotFound
	}
	if t.Status != task.StatusActive {
		return task.SeatCounters{}, shared.ErrTaskNotActive
	}
	if t.CurrentStudents >= t.MaxStudents {
		return task.SeatCounters{}, shared.ErrCapacityExceeded
	}
	t.CurrentStudents++
	t.TotalAttempts++
	return task.SeatCounters{CurrentStudents: t.CurrentStudents, MaxStudents: t.MaxStudents}, nil
}

func (r *fakeTaskRepo) ReleaseSeat(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return shared.ErrTaskNotFound
	}
	if t.CurrentStudents > 0 {
		t.CurrentStudents--
		if t.TotalAttempts > 0 {
			t.TotalAttempts--
		}
	}
	return nil
}

func (r *fakeTaskRepo) RecordSuccess(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return shared.ErrTaskNotFound
	}
	t.SuccessfulCompletions++
	return nil
}

func (r *fakeTaskRepo) List(_ context.Context, filter task.ListFilter) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.TeacherID != "" && t.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeTaskRepo) ListOpenForEnrollment(_ context.Context, now time.Time, limit int) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if !t.IsOpenForEnrollment(now) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeTaskRepo) ExpireDue(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, t := range r.tasks {
		if t.Status == task.StatusActive && t.IsExpired(now) {
			t.Status = task.StatusExpired
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func (r *fakeTaskRepo) UpdateStats(_ context.Context, id string, successRate, averageRating float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return shared.ErrTaskNotFound
	}
	t.SuccessRate = successRate
	t.AverageRating = averageRating
	return nil
}

func (r *fakeTaskRepo) Count(ctx context.Context, filter task.ListFilter) (int, error) {
	all, _ := r.List(ctx, filter)
	return len(all), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// enrollment repository
// ──────────────────────────────────────────────────────────────────────────────

type fakeEnrollmentRepo struct {
	mu          sync.Mutex
	enrollments map[string]*enrollment.Enrollment
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{enrollments: make(map[string]*enrollment.Enrollment)}
}

func (r *fakeEnrollmentRepo) Create(_ context.Context, e *enrollment.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.enrollments {
		if existing.TaskID == e.TaskID && existing.StudentID == e.StudentID &&
			existing.Status != enrollment.StatusCancelled {
			return shared.ErrDuplicateEnrollment
		}
	}
	cp := *e
	r.enrollments[e.ID] = &cp
	return nil
}

func (r *fakeEnrollmentRepo) GetByID(_ context.Context, id string) (*enrollment.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeEnrollmentRepo) GetActiveByTaskAndStudent(_ context.Context, taskID, studentID string) (*enrollment.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.enrollments {
		if e.TaskID == taskID && e.StudentID == studentID &&
			(e.Status == enrollment.StatusActive || e.Status == enrollment.StatusCompleted) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, shared.ErrEnrollmentNotFound
}

func (r *fakeEnrollmentRepo) UpdateStatusCAS(_ context.Context, e *enrollment.Enrollment, expected enrollment.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.enrollments[e.ID]
	if !ok {
		return shared.ErrEnrollmentNotFound
	}
	if stored.Status != expected {
		return shared.ErrConcurrentTransition
	}
	cp := *e
	r.enrollments[e.ID] = &cp
	return nil
}

func (r *fakeEnrollmentRepo) List(_ context.Context, filter enrollment.ListFilter) ([]*enrollment.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*enrollment.Enrollment
	for _, e := range r.enrollments {
		if filter.TaskID != "" && e.TaskID != filter.TaskID {
			continue
		}
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeEnrollmentRepo) ListAwaitingReview(_ context.Context, teacherID string, limit int) ([]*enrollment.Enrollment, error) {
	return nil, nil
}

func (r *fakeEnrollmentRepo) ListOverdue(_ context.Context, now time.Time, limit int) ([]*enrollment.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*enrollment.Enrollment
	for _, e := range r.enrollments {
		if e.IsOverdue(now) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeEnrollmentRepo) CountByTask(_ context.Context, taskID string) (map[enrollment.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[enrollment.Status]int)
	for _, e := range r.enrollments {
		if e.TaskID == taskID {
			counts[e.Status]++
		}
	}
	return counts, nil
}

func (r *fakeEnrollmentRepo) StatsByTask(_ context.Context, taskID string) (enrollment.TaskStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats enrollment.TaskStats
	var scoreSum int
	for _, e := range r.enrollments {
		if e.TaskID != taskID || e.Status == enrollment.StatusCancelled {
			continue
		}
		stats.Attempts++
		if e.Status == enrollment.StatusReviewed {
			stats.Reviewed++
			scoreSum += e.Score
			if e.Score >= 4 {
				stats.Passing++
			}
		}
	}
	if stats.Reviewed > 0 {
		stats.AverageScore = float64(scoreSum) / float64(stats.Reviewed)
	}
	return stats, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ledger repository
// ──────────────────────────────────────────────────────────────────────────────

type fakeLedgerRepo struct {
	mu      sync.Mutex
	entries []*ledger.Entry

	failBatch bool
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{}
}

func (r *fakeLedgerRepo) balanceLocked(userID string) ledger.Balance {
	b := ledger.Balance{UserID: userID}
	for _, e := range r.entries {
		if e.UserID != userID || e.Status != ledger.StatusConfirmed {
			continue
		}
		b.Available += shared.Amount(e.SignedAmount())
		switch e.Type {
		case ledger.EntryStake:
			b.Locked += e.Amount
		case ledger.EntryRefund:
			b.Locked -= e.Amount
		}
	}
	if b.Locked < 0 {
		b.Locked = 0
	}
	return b
}

func (r *fakeLedgerRepo) Append(_ context.Context, entry *ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.Type == ledger.EntryStake {
		if r.balanceLocked(entry.UserID).Available < entry.Amount {
			return shared.ErrInsufficientStake
		}
	}
	cp := *entry
	cp.Status = ledger.StatusConfirmed
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *fakeLedgerRepo) AppendBatch(_ context.Context, entries []*ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failBatch {
		return shared.ErrSettlementFailure
	}
	for _, entry := range entries {
		cp := *entry
		cp.Status = ledger.StatusConfirmed
		r.entries = append(r.entries, &cp)
	}
	return nil
}

func (r *fakeLedgerRepo) GetByID(_ context.Context, id string) (*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, shared.ErrEntryNotFound
}

func (r *fakeLedgerRepo) GetBalance(_ context.Context, userID string) (ledger.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balanceLocked(userID), nil
}

func (r *fakeLedgerRepo) List(_ context.Context, filter ledger.ListFilter) ([]*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ledger.Entry
	for _, e := range r.entries {
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.EnrollmentID != "" && e.EnrollmentID != filter.EnrollmentID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeLedgerRepo) SumByEnrollment(_ context.Context, enrollmentID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, e := range r.entries {
		if e.EnrollmentID == enrollmentID && e.Status == ledger.StatusConfirmed {
			sum += e.SignedAmount()
		}
	}
	return sum, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// question, recommendation and badge repositories
// ──────────────────────────────────────────────────────────────────────────────

type fakeQuestionRepo struct {
	mu        sync.Mutex
	questions map[string]*question.Question
	answers   map[string][]*question.Answer // keyed by question ID
}

func newFakeQuestionRepo() *fakeQuestionRepo {
	return &fakeQuestionRepo{
		questions: make(map[string]*question.Question),
		answers:   make(map[string][]*question.Answer),
	}
}

func (r *fakeQuestionRepo) Create(_ context.Context, q *question.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *q
	cp.Answers = nil
	r.questions[q.ID] = &cp
	return nil
}

// withAnswersLocked copies a question with its answers attached oldest
// first. Caller holds the mutex.
func (r *fakeQuestionRepo) withAnswersLocked(q *question.Question) *question.Question {
	cp := *q
	cp.Answers = nil
	for _, a := range r.answers[q.ID] {
		ac := *a
		cp.Answers = append(cp.Answers, &ac)
	}
	sort.SliceStable(cp.Answers, func(i, j int) bool {
		return cp.Answers[i].CreatedAt.Before(cp.Answers[j].CreatedAt)
	})
	return &cp
}

func (r *fakeQuestionRepo) GetByID(_ context.Context, id string) (*question.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok {
		return nil, shared.ErrQuestionNotFound
	}
	return r.withAnswersLocked(q), nil
}

func (r *fakeQuestionRepo) AddAnswer(_ context.Context, a *question.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[a.QuestionID]; !ok {
		return shared.ErrQuestionNotFound
	}
	cp := *a
	r.answers[a.QuestionID] = append(r.answers[a.QuestionID], &cp)
	return nil
}

func (r *fakeQuestionRepo) ListThread(_ context.Context, taskID, studentID string) ([]*question.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*question.Question
	for _, q := range r.questions {
		if q.TaskID == taskID && q.StudentID == studentID {
			out = append(out, r.withAnswersLocked(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeQuestionRepo) ListUnansweredForTeacher(_ context.Context, teacherID string, limit int) ([]*question.Question, error) {
	return nil, nil
}

func (r *fakeQuestionRepo) CountUnanswered(_ context.Context, taskID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, q := range r.questions {
		if q.TaskID == taskID && len(r.answers[q.ID]) == 0 {
			count++
		}
	}
	return count, nil
}

type fakeRecommendationRepo struct {
	mu           sync.Mutex
	explanations map[string]*recommendation.Explanation // keyed by student|task
}

func newFakeRecommendationRepo() *fakeRecommendationRepo {
	return &fakeRecommendationRepo{explanations: make(map[string]*recommendation.Explanation)}
}

func (r *fakeRecommendationRepo) Upsert(_ context.Context, x *recommendation.Explanation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *x
	r.explanations[x.StudentID+"|"+x.TaskID] = &cp
	return nil
}

func (r *fakeRecommendationRepo) GetByStudentAndTask(_ context.Context, studentID, taskID string) (*recommendation.Explanation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, ok := r.explanations[studentID+"|"+taskID]
	if !ok {
		return nil, shared.ErrExplanationNotFound
	}
	cp := *x
	return &cp, nil
}

func (r *fakeRecommendationRepo) ListByStudent(_ context.Context, studentID string, limit int) ([]*recommendation.Explanation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*recommendation.Explanation
	for _, x := range r.explanations {
		if x.StudentID == studentID {
			cp := *x
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	return out, nil
}

func (r *fakeRecommendationRepo) DeleteByTask(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, x := range r.explanations {
		if x.TaskID == taskID {
			delete(r.explanations, key)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// event publisher
// ──────────────────────────────────────────────────────────────────────────────

type fakePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{}
}

func (p *fakePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) byType(eventType shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// test environment
// ──────────────────────────────────────────────────────────────────────────────

type testEnv struct {
	profiles        *fakeProfileRepo
	tasks           *fakeTaskRepo
	enrollments     *fakeEnrollmentRepo
	entries         *fakeLedgerRepo
	questions       *fakeQuestionRepo
	recommendations *fakeRecommendationRepo
	publisher       *fakePublisher
}

func newTestEnv() *testEnv {
	return &testEnv{
		profiles:        newFakeProfileRepo(),
		tasks:           newFakeTaskRepo(),
		enrollments:     newFakeEnrollmentRepo(),
		entries:         newFakeLedgerRepo(),
		questions:       newFakeQuestionRepo(),
		recommendations: newFakeRecommendationRepo(),
		publisher:       newFakePublisher(),
	}
}

// seedProfile creates a profile with the given confirmed balance.
func (env *testEnv) seedProfile(id, wallet string, role profile.Role, balance shared.Amount) *profile.Profile {
	p, err := profile.NewProfile(id, shared.WalletAddress(wallet), role, "")
	if err != nil {
		panic(err)
	}
	if err := env.profiles.Create(context.Background(), p); err != nil {
		panic(err)
	}
	if balance > 0 {
		grant, _ := ledger.NewEntry("grant-"+id, id, ledger.EntryReward, balance, "signup grant")
		if err := env.entries.Append(context.Background(), grant); err != nil {
			panic(err)
		}
	}
	return p
}

// seedTask creates an active task owned by teacherID.
func (env *testEnv) seedTask(id, teacherID string, reward, stake shared.Amount, maxStudents int) *task.Task {
	t, err := task.NewTask(id, teacherID, "Concurrency in Go basics", "desc",
		task.DifficultyIntermediate, reward, stake, maxStudents)
	if err != nil {
		panic(err)
	}
	if err := env.tasks.Create(context.Background(), t); err != nil {
		panic(err)
	}
	// Mirror CreateTaskHandler: publishing locks the reward pool.
	lock, err := ledger.NewEntry("pool-"+id, teacherID, ledger.EntryStake, t.RewardPool(),
		"reward pool for "+t.Title)
	if err != nil {
		panic(err)
	}
	lock.ForEnrollment(t.ID, "")
	if err := env.entries.Append(context.Background(), lock); err != nil {
		panic(err)
	}
	return t
}

package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/examforge/exam-engine/internal/models"
	"github.com/examforge/exam-engine/internal/repositories"
)

// fakeRepository is an in-memory repositories.Repository used by the
// service tests. It honors the same contracts as the postgres
// implementation: conditional finalize, answer upsert keyed by
// (submission, question), ErrNotFound on misses.
type fakeRepository struct {
	mu sync.Mutex

	exams       map[uint]*models.Exam
	questions   map[uint]*models.Question
	submissions map[uint]*models.Submission
	answers     map[uint]*models.SubmissionAnswer
	users       map[string]*models.User

	nextSubmissionID uint
	nextAnswerID     uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		exams:            make(map[uint]*models.Exam),
		questions:        make(map[uint]*models.Question),
		submissions:      make(map[uint]*models.Submission),
		answers:          make(map[uint]*models.SubmissionAnswer),
		users:            make(map[string]*models.User),
		nextSubmissionID: 1,
		nextAnswerID:     1,
	}
}

func (f *fakeRepository) addExam(exam *models.Exam) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exams[exam.ID] = exam
}

func (f *fakeRepository) addQuestion(q *models.Question) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions[q.ID] = q
}

func (f *fakeRepository) addSubmission(s *models.Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == 0 {
		s.ID = f.nextSubmissionID
	}
	if s.ID >= f.nextSubmissionID {
		f.nextSubmissionID = s.ID + 1
	}
	f.submissions[s.ID] = s
}

func (f *fakeRepository) addUser(u *models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeRepository) Exam() repositories.ExamRepository             { return &fakeExamRepo{f} }
func (f *fakeRepository) Question() repositories.QuestionRepository     { return &fakeQuestionRepo{f} }
func (f *fakeRepository) Submission() repositories.SubmissionRepository { return &fakeSubmissionRepo{f} }
func (f *fakeRepository) User() repositories.UserRepository             { return &fakeUserRepo{f} }

func (f *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}

func (f *fakeRepository) Ping(ctx context.Context) error { return nil }
func (f *fakeRepository) Close() error                   { return nil }

// ===== EXAMS =====

type fakeExamRepo struct{ f *fakeRepository }

func (r *fakeExamRepo) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	exam, ok := r.f.exams[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return exam, nil
}

func (r *fakeExamRepo) GetByIDWithQuestions(ctx context.Context, id uint) (*models.Exam, error) {
	return r.GetByID(ctx, id)
}

// ===== QUESTIONS =====

type fakeQuestionRepo struct{ f *fakeRepository }

func (r *fakeQuestionRepo) GetByID(ctx context.Context, id uint) (*models.Question, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	q, ok := r.f.questions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return q, nil
}

func (r *fakeQuestionRepo) GetByIDs(ctx context.Context, ids []uint) ([]*models.Question, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	out := make([]*models.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := r.f.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// ===== SUBMISSIONS =====

type fakeSubmissionRepo struct{ f *fakeRepository }

func (r *fakeSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	// Mirrors the partial unique indexes: one in_progress submission
	// per caller per exam.
	for _, existing := range r.f.submissions {
		if existing.ExamID != submission.ExamID || existing.Status != models.SubmissionInProgress {
			continue
		}
		if submission.UserID != nil && existing.UserID != nil && *existing.UserID == *submission.UserID {
			return repositories.ErrDuplicateActive
		}
		if submission.GuestName != nil && existing.GuestName != nil && *existing.GuestName == *submission.GuestName {
			return repositories.ErrDuplicateActive
		}
	}
	submission.ID = r.f.nextSubmissionID
	r.f.nextSubmissionID++
	submission.CreatedAt = time.Now()
	r.f.submissions[submission.ID] = submission
	return nil
}

func (r *fakeSubmissionRepo) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.submissions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return s, nil
}

func (r *fakeSubmissionRepo) GetByIDWithAnswers(ctx context.Context, id uint) (*models.Submission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.submissions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}

	s.Answers = s.Answers[:0]
	ids := make([]uint, 0)
	for aid, a := range r.f.answers {
		if a.SubmissionID == id {
			ids = append(ids, aid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, aid := range ids {
		s.Answers = append(s.Answers, *r.f.answers[aid])
	}
	return s, nil
}

func (r *fakeSubmissionRepo) List(ctx context.Context, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()

	out := make([]*models.Submission, 0)
	for _, s := range r.f.submissions {
		if filters.ExamID != nil && s.ExamID != *filters.ExamID {
			continue
		}
		if filters.Status != nil && s.Status != *filters.Status {
			continue
		}
		if filters.UserID != nil && (s.UserID == nil || *s.UserID != *filters.UserID) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	total := int64(len(out))
	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			out = nil
		} else {
			out = out[filters.Offset:]
		}
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

func (r *fakeSubmissionRepo) GetActiveByUser(ctx context.Context, examID uint, userID string) (*models.Submission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, s := range r.f.submissions {
		if s.ExamID == examID && s.Status == models.SubmissionInProgress &&
			s.UserID != nil && *s.UserID == userID {
			return s, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeSubmissionRepo) GetActiveByGuest(ctx context.Context, examID uint, guestName string) (*models.Submission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, s := range r.f.submissions {
		if s.ExamID == examID && s.Status == models.SubmissionInProgress &&
			s.GuestName != nil && *s.GuestName == guestName {
			return s, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeSubmissionRepo) CountFinalizedByUser(ctx context.Context, examID uint, userID string) (int, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	count := 0
	for _, s := range r.f.submissions {
		if s.ExamID == examID && s.Status.IsTerminal() &&
			s.UserID != nil && *s.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *fakeSubmissionRepo) GetInProgress(ctx context.Context) ([]*models.Submission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	out := make([]*models.Submission, 0)
	for _, s := range r.f.submissions {
		if s.Status == models.SubmissionInProgress {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSubmissionRepo) GetFinalizedByExam(ctx context.Context, examID uint) ([]*models.Submission, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	out := make([]*models.Submission, 0)
	for _, s := range r.f.submissions {
		if s.ExamID == examID && s.Status.IsTerminal() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSubmissionRepo) UpsertAnswer(ctx context.Context, answer *models.SubmissionAnswer) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, a := range r.f.answers {
		if a.SubmissionID == answer.SubmissionID && a.QuestionID == answer.QuestionID {
			a.SubmittedValue = answer.SubmittedValue
			a.UpdatedAt = time.Now()
			return nil
		}
	}
	answer.ID = r.f.nextAnswerID
	r.f.nextAnswerID++
	answer.CreatedAt = time.Now()
	r.f.answers[answer.ID] = answer
	return nil
}

func (r *fakeSubmissionRepo) GetAnswers(ctx context.Context, submissionID uint) ([]*models.SubmissionAnswer, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	out := make([]*models.SubmissionAnswer, 0)
	for _, a := range r.f.answers {
		if a.SubmissionID == submissionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSubmissionRepo) UpdateAnswerGrade(ctx context.Context, answerID uint, isCorrect bool, points float64) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	a, ok := r.f.answers[answerID]
	if !ok {
		return repositories.ErrNotFound
	}
	a.IsCorrect = &isCorrect
	a.Points = points
	return nil
}

func (r *fakeSubmissionRepo) TouchAutoSaved(ctx context.Context, id uint, at time.Time) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.submissions[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if s.Status != models.SubmissionInProgress {
		return repositories.ErrStatusConflict
	}
	s.AutoSavedAt = &at
	return nil
}

func (r *fakeSubmissionRepo) Finalize(ctx context.Context, id uint, fin repositories.SubmissionFinalization) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.submissions[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if s.Status != models.SubmissionInProgress {
		return repositories.ErrStatusConflict
	}
	s.Status = fin.Status
	submittedAt := fin.SubmittedAt
	s.SubmittedAt = &submittedAt
	s.TimeSpent = fin.TimeSpent
	s.Score = fin.Score
	s.MaxScore = fin.MaxScore
	s.Percentage = fin.Percentage
	return nil
}

func (r *fakeSubmissionRepo) UpdateProctoringData(ctx context.Context, id uint, data datatypes.JSON) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.submissions[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if s.Status != models.SubmissionInProgress {
		return repositories.ErrStatusConflict
	}
	s.ProctoringData = data
	return nil
}

// ===== USERS =====

type fakeUserRepo struct{ f *fakeRepository }

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	u, ok := r.f.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return u, nil
}

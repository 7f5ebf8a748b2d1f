// Package quiz implements the per-attempt quiz session state machine.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-quiz/internal/course"
)

// DefaultRevealInterval is how long the answer reveal is shown before the
// session moves on.
const DefaultRevealInterval = 2 * time.Second

// Transition errors. A rejected transition leaves the session untouched.
var (
	ErrNoQuestions   = errors.New("quiz has no questions")
	ErrNotInProgress = errors.New("answers are locked")
	ErrInvalidOption = errors.New("option index out of range")
	ErrNoSelection   = errors.New("no answer selected")
	ErrClosed        = errors.New("session closed")
)

// State is the session's position in the state machine.
type State int

const (
	StateInProgress State = iota
	StateShowingResult
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in_progress"
	case StateShowingResult:
		return "showing_result"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Result is handed to the Committer once per completed attempt.
type Result struct {
	AttemptID   string
	Course      course.Course
	Identity    course.Identity
	Answers     []int
	Score       Score
	CompletedAt time.Time
}

// Committer persists (or announces) a completed attempt. Commit runs
// synchronously on the transition into StateCompleted.
type Committer interface {
	Commit(ctx context.Context, r Result)
}

// Config holds the dependencies of a session.
type Config struct {
	Course           course.Course
	Questions        []course.Question
	Identity         course.Identity
	RevealInterval   time.Duration // default 2s
	PointsPerCorrect int           // default 10
	Scheduler        Scheduler     // default SystemScheduler
	Committer        Committer     // nil skips the commit
	OnChange         func(View)    // called after every transition, in version order; must not call back into the session
	Context          context.Context
	NewAttemptID     func() string
	Now              func() time.Time
}

// Session owns the mutable state of one quiz attempt. It is driven by a single
// caller; the mutex only serialises the caller against the reveal timer.
type Session struct {
	course    course.Course
	questions []course.Question
	identity  course.Identity
	reveal    time.Duration
	points    int
	scheduler Scheduler
	committer Committer
	onChange  func(View)
	ctx       context.Context
	newID     func() string
	now       func() time.Time

	emitMu sync.Mutex

	mu         sync.Mutex
	state      State
	index      int
	selected   *int
	answers    []int
	attemptID  string
	generation uint64
	version    uint64
	timer      Timer
	committed  bool
	closed     bool
}

// New creates a session in InProgress(0).
func New(cfg Config) (*Session, error) {
	if len(cfg.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	for i, q := range cfg.Questions {
		if !course.Valid(q.Raw()) {
			return nil, fmt.Errorf("question %d (%s) is malformed", i, q.ID)
		}
	}

	s := &Session{
		course:    cfg.Course,
		questions: append([]course.Question(nil), cfg.Questions...),
		identity:  cfg.Identity,
		reveal:    cfg.RevealInterval,
		points:    cfg.PointsPerCorrect,
		scheduler: cfg.Scheduler,
		committer: cfg.Committer,
		onChange:  cfg.OnChange,
		ctx:       cfg.Context,
		newID:     cfg.NewAttemptID,
		now:       cfg.Now,
	}
	if s.reveal <= 0 {
		s.reveal = DefaultRevealInterval
	}
	if s.points == 0 {
		s.points = DefaultPointsPerCorrect
	}
	if s.scheduler == nil {
		s.scheduler = SystemScheduler
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.attemptID = s.newID()
	s.answers = make([]int, 0, len(s.questions))
	return s, nil
}

// SelectAnswer records the current choice. Re-selecting overwrites it.
func (s *Session) SelectAnswer(option int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateInProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	if option < 0 || option >= course.OptionCount {
		s.mu.Unlock()
		return ErrInvalidOption
	}
	s.selected = &option
	s.version++
	s.unlockAndEmit(s.viewLocked())
	return nil
}

// Advance locks in the selected answer, reveals the result and schedules the
// move to the next question (or completion) after the reveal interval.
func (s *Session) Advance() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateInProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	if s.selected == nil {
		s.mu.Unlock()
		return ErrNoSelection
	}

	s.answers = append(s.answers, *s.selected)
	s.state = StateShowingResult
	gen := s.generation
	s.timer = s.scheduler.AfterFunc(s.reveal, func() { s.finishReveal(gen) })
	s.version++
	s.unlockAndEmit(s.viewLocked())
	return nil
}

// finishReveal is the scheduled end of ShowingResult. It is a no-op when the
// session was restarted or closed after it was scheduled.
func (s *Session) finishReveal(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.generation || s.state != StateShowingResult {
		s.mu.Unlock()
		return
	}
	s.timer = nil

	if s.index+1 < len(s.questions) {
		s.index++
		s.selected = nil
		s.state = StateInProgress
		s.version++
		s.unlockAndEmit(s.viewLocked())
		return
	}

	s.state = StateCompleted
	s.selected = nil
	commit := !s.committed
	s.committed = true
	result := s.resultLocked()
	s.version++
	s.unlockAndEmit(s.viewLocked())

	if !commit || s.committer == nil {
		return
	}
	s.committer.Commit(s.ctx, result)
}

// Restart returns to InProgress(0) with the same questions and a fresh
// attempt id. A pending reveal is cancelled and can no longer fire.
func (s *Session) Restart() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.invalidateLocked()
	s.state = StateInProgress
	s.index = 0
	s.selected = nil
	s.answers = make([]int, 0, len(s.questions))
	s.committed = false
	s.attemptID = s.newID()
	s.version++
	slog.Debug("quiz restarted", "course_id", s.course.ID, "attempt_id", s.attemptID)
	s.unlockAndEmit(s.viewLocked())
	return nil
}

// Close tears the session down and cancels any pending reveal. Further
// transitions return ErrClosed. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.invalidateLocked()
	s.closed = true
}

func (s *Session) invalidateLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// State returns the current state and question index.
func (s *Session) State() (State, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.index
}

// Score scores the answers recorded so far against all questions.
func (s *Session) Score() Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScoreAnswers(s.questions, s.answers, s.points)
}

// Answers returns a copy of the recorded answers.
func (s *Session) Answers() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.answers...)
}

// View returns the display model of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Course returns the course the session was loaded for.
func (s *Session) Course() course.Course {
	return s.course
}

// Identity returns the identity the session was loaded for.
func (s *Session) Identity() course.Identity {
	return s.identity
}

func (s *Session) resultLocked() Result {
	return Result{
		AttemptID:   s.attemptID,
		Course:      s.course,
		Identity:    s.identity,
		Answers:     append([]int(nil), s.answers...),
		Score:       ScoreAnswers(s.questions, s.answers, s.points),
		CompletedAt: s.now().UTC(),
	}
}

// unlockAndEmit releases s.mu and delivers v to OnChange. The emit lock is
// taken before s.mu is released, so listeners receive views in version order.
func (s *Session) unlockAndEmit(v View) {
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	if s.onChange != nil {
		s.onChange(v)
	}
}

package quiz

// View is the display model of a session. Correct answers and the
// explanation are only filled in once the current answer is locked.
type View struct {
	AttemptID   string        `json:"attempt_id"`
	Version     uint64        `json:"version"`
	CourseID    string        `json:"course_id"`
	CourseTitle string        `json:"course_title"`
	Mode        string        `json:"mode"`
	State       string        `json:"state"`
	Index       int           `json:"index"`
	Total       int           `json:"total"`
	Answered    int           `json:"answered"`
	Selected    *int          `json:"selected"`
	Question    *QuestionView `json:"question,omitempty"`
	Score       Score         `json:"score"`
	Review      []ReviewItem  `json:"review,omitempty"`
}

// QuestionView is the question currently on screen.
type QuestionView struct {
	ID          string       `json:"id"`
	Prompt      string       `json:"question"`
	Options     []OptionView `json:"options"`
	Locked      bool         `json:"locked"`
	Explanation string       `json:"explanation,omitempty"`
}

// OptionView is one answer option. Correct is only meaningful when the
// question is locked.
type OptionView struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
	Correct  bool   `json:"correct,omitempty"`
}

// ReviewItem summarises one answered question after completion.
type ReviewItem struct {
	QuestionID    string `json:"question_id"`
	Prompt        string `json:"question"`
	Answer        int    `json:"answer"`
	AnswerText    string `json:"answer_text"`
	CorrectAnswer int    `json:"correct_answer"`
	CorrectText   string `json:"correct_text"`
	IsCorrect     bool   `json:"is_correct"`
	Explanation   string `json:"explanation"`
}

func (s *Session) viewLocked() View {
	v := View{
		AttemptID:   s.attemptID,
		Version:     s.version,
		CourseID:    s.course.ID,
		CourseTitle: s.course.Title,
		Mode:        s.identity.Mode(),
		State:       s.state.String(),
		Index:       s.index,
		Total:       len(s.questions),
		Answered:    len(s.answers),
		Score:       ScoreAnswers(s.questions, s.answers, s.points),
	}
	if s.selected != nil {
		sel := *s.selected
		v.Selected = &sel
	}

	if s.state == StateCompleted {
		v.Review = s.reviewLocked()
		return v
	}

	q := s.questions[s.index]
	locked := s.state == StateShowingResult
	chosen := -1
	if locked {
		chosen = s.answers[s.index]
		v.Selected = &chosen
	} else if s.selected != nil {
		chosen = *s.selected
	}

	qv := &QuestionView{
		ID:      q.ID,
		Prompt:  q.Prompt,
		Options: make([]OptionView, len(q.Options)),
		Locked:  locked,
	}
	for i, text := range q.Options {
		qv.Options[i] = OptionView{
			Index:    i,
			Text:     text,
			Selected: i == chosen,
			Correct:  locked && i == q.CorrectAnswer,
		}
	}
	if locked {
		qv.Explanation = q.Explanation
	}
	v.Question = qv
	return v
}

func (s *Session) reviewLocked() []ReviewItem {
	items := make([]ReviewItem, 0, len(s.answers))
	for i, a := range s.answers {
		q := s.questions[i]
		items = append(items, ReviewItem{
			QuestionID:    q.ID,
			Prompt:        q.Prompt,
			Answer:        a,
			AnswerText:    q.Options[a],
			CorrectAnswer: q.CorrectAnswer,
			CorrectText:   q.Options[q.CorrectAnswer],
			IsCorrect:     a == q.CorrectAnswer,
			Explanation:   q.Explanation,
		})
	}
	return items
}

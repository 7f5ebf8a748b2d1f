package course

import "strings"

// Valid reports whether a raw record satisfies the question invariant:
// a non-empty prompt, exactly four options and a correct index in range.
func Valid(raw RawQuestion) bool {
	if strings.TrimSpace(raw.Prompt) == "" {
		return false
	}
	if len(raw.Options) != OptionCount {
		return false
	}
	if raw.CorrectAnswer == nil {
		return false
	}
	return *raw.CorrectAnswer >= 0 && *raw.CorrectAnswer < OptionCount
}

// Filter drops invalid records, preserving order. Records are never repaired
// beyond defaulting a missing explanation.
func Filter(raw []RawQuestion) []Question {
	questions := make([]Question, 0, len(raw))
	for _, r := range raw {
		if !Valid(r) {
			continue
		}
		explanation := r.Explanation
		if strings.TrimSpace(explanation) == "" {
			explanation = DefaultExplanation
		}
		questions = append(questions, Question{
			ID:            r.ID,
			Prompt:        r.Prompt,
			Options:       append([]string(nil), r.Options...),
			CorrectAnswer: *r.CorrectAnswer,
			Explanation:   explanation,
		})
	}
	return questions
}

// build classifies a raw question list into a usable set or a load failure.
func build(raw []RawQuestion) ([]Question, error) {
	if len(raw) == 0 {
		return nil, ErrNoQuestionsAvailable
	}
	questions := Filter(raw)
	if len(questions) == 0 {
		return nil, ErrQuestionsCorrupted
	}
	return questions, nil
}

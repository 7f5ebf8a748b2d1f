package quiz

import "github.com/p-n-ai/pai-quiz/internal/course"

// DefaultPointsPerCorrect is awarded for each correctly answered question.
const DefaultPointsPerCorrect = 10

// Score is derived from recorded answers.
type Score struct {
	Correct    int    `json:"correct"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Points     int    `json:"points"`
	Band       string `json:"band"`
}

// ScoreAnswers scores answers positionally against questions. Answers beyond
// the question list are ignored.
func ScoreAnswers(questions []course.Question, answers []int, pointsPerCorrect int) Score {
	correct := 0
	for i, a := range answers {
		if i >= len(questions) {
			break
		}
		if a == questions[i].CorrectAnswer {
			correct++
		}
	}
	pct := Percentage(correct, len(questions))
	return Score{
		Correct:    correct,
		Total:      len(questions),
		Percentage: pct,
		Points:     correct * pointsPerCorrect,
		Band:       Band(pct),
	}
}

// Percentage returns round-half-up of 100*correct/total in integer
// arithmetic. A zero total scores 0.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}

// Band buckets a percentage for display: good from 80, fair from 60.
func Band(percentage int) string {
	switch {
	case percentage >= 80:
		return "good"
	case percentage >= 60:
		return "fair"
	default:
		return "poor"
	}
}

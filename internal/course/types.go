// Package course resolves a course and its validated quiz questions for a
// caller, either from the bundled guest catalog or from the course store.
package course

import "time"

// OptionCount is the number of answer options every question must carry.
const OptionCount = 4

// DefaultExplanation is used when a stored question has no explanation.
const DefaultExplanation = "No explanation available."

// Course is the summary of an uploaded course.
type Course struct {
	ID          string    `json:"id" yaml:"id"`
	UserID      string    `json:"user_id" yaml:"user_id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	FileURL     string    `json:"file_url" yaml:"file_url"`
	FileType    string    `json:"file_type" yaml:"file_type"`
	Progress    int       `json:"progress" yaml:"progress"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// Question is a validated multiple-choice question. Options always has
// exactly OptionCount entries and CorrectAnswer indexes into it.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// Raw converts a validated question back to its unvalidated form.
func (q Question) Raw() RawQuestion {
	correct := q.CorrectAnswer
	return RawQuestion{
		ID:            q.ID,
		Prompt:        q.Prompt,
		Options:       append([]string(nil), q.Options...),
		CorrectAnswer: &correct,
		Explanation:   q.Explanation,
	}
}

// RawQuestion is a question record as it comes out of a catalog or store,
// before validation. A nil CorrectAnswer means the field was missing.
type RawQuestion struct {
	ID            string   `yaml:"id"`
	Prompt        string   `yaml:"question"`
	Options       []string `yaml:"options"`
	CorrectAnswer *int     `yaml:"correct_answer"`
	Explanation   string   `yaml:"explanation"`
}

// Identity identifies the caller. An empty UserID is a guest.
type Identity struct {
	UserID string
}

// Guest is the anonymous identity.
var Guest = Identity{}

// IsGuest reports whether the identity has no durable user.
func (i Identity) IsGuest() bool {
	return i.UserID == ""
}

// Mode names the identity's mode for logs and responses.
func (i Identity) Mode() string {
	if i.IsGuest() {
		return "guest"
	}
	return "authenticated"
}

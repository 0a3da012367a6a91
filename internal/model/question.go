package model

import "slices"

// Question is a canonical question including its answer key.
// CorrectAnswer holds 1-based option indices; more than one index makes the
// question multi-select, scored by membership.
type Question struct {
	ID            string   `json:"id"`
	FormID        string   `json:"form_id"`
	Position      int      `json:"position"`
	QuestionText  string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer []int    `json:"-"`
}

// Accepts reports whether option is one of the correct indices.
func (q *Question) Accepts(option int) bool {
	return slices.Contains(q.CorrectAnswer, option)
}

// Public strips the answer key.
func (q *Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:       q.ID,
		Question: q.QuestionText,
		Options:  q.Options,
	}
}

// PublicQuestion is the only question shape sent to students.
type PublicQuestion struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Form is a named question set bound to a course.
type Form struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Title    string `json:"title"`
}

// QuestionSet is the cached, shuffled and sanitized view of a form.
type QuestionSet struct {
	FormID    string           `json:"formId"`
	Questions []PublicQuestion `json:"questions"`
}

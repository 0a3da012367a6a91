package model

import "time"

// Student is the record a roll number resolves to. Attempted is a one-way
// latch: once true it never reverts.
type Student struct {
	ID          int            `json:"id"`
	Name        string         `json:"name"`
	RollNumber  string         `json:"roll_number"`
	College     string         `json:"college"`
	Branch      string         `json:"branch"`
	University  string         `json:"university"`
	CourseID    string         `json:"course_id"`
	Phone       string         `json:"phone"`
	Attempted   bool           `json:"attempted"`
	Marks       int            `json:"marks"`
	Answers     map[string]int `json:"answers,omitempty"`
	Session     SessionData    `json:"session_data"`
	SubmittedAt *time.Time     `json:"submitted_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// StudentInfo is the identity snapshot returned to the client after a
// successful roll-number claim.
type StudentInfo struct {
	Name       string `json:"name"`
	RollNumber string `json:"rollNumber"`
	College    string `json:"college"`
	Branch     string `json:"branch"`
	University string `json:"university"`
	CourseID   string `json:"courseId"`
}

// Info projects the client-visible identity fields.
func (s *Student) Info() StudentInfo {
	return StudentInfo{
		Name:       s.Name,
		RollNumber: s.RollNumber,
		College:    s.College,
		Branch:     s.Branch,
		University: s.University,
		CourseID:   s.CourseID,
	}
}

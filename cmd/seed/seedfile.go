package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/stemsi/exstem-portal/internal/model"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout accepted by the seed command.
type SeedFile struct {
	Forms    []SeedForm    `yaml:"forms"`
	Students []SeedStudent `yaml:"students"`
}

type SeedForm struct {
	ID        string         `yaml:"id"`
	CourseID  string         `yaml:"course_id"`
	Title     string         `yaml:"title"`
	Questions []SeedQuestion `yaml:"questions"`
}

type SeedQuestion struct {
	ID       string   `yaml:"id"`
	Question string   `yaml:"question"`
	Options  []string `yaml:"options"`
	// Correct lists 1-based option indices.
	Correct []int `yaml:"correct"`
}

type SeedStudent struct {
	Name       string `yaml:"name"`
	RollNumber string `yaml:"roll_number"`
	College    string `yaml:"college"`
	Branch     string `yaml:"branch"`
	University string `yaml:"university"`
	CourseID   string `yaml:"course_id"`
	Phone      string `yaml:"phone"`
}

// ParseSeedFile decodes and validates a seed file. Unknown keys are rejected.
func ParseSeedFile(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f SeedFile
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks identifiers are unique and answer keys point at options.
func (f *SeedFile) Validate() error {
	var problems []string
	formIDs := map[string]bool{}
	courses := map[string]bool{}
	questionIDs := map[string]bool{}

	for i, form := range f.Forms {
		where := fmt.Sprintf("forms[%d]", i)
		switch {
		case form.ID == "":
			problems = append(problems, where+": id is required")
		case formIDs[form.ID]:
			problems = append(problems, fmt.Sprintf("%s: duplicate form id %q", where, form.ID))
		}
		formIDs[form.ID] = true

		switch {
		case form.CourseID == "":
			problems = append(problems, where+": course_id is required")
		case courses[form.CourseID]:
			problems = append(problems, fmt.Sprintf("%s: course %q already has a form", where, form.CourseID))
		}
		courses[form.CourseID] = true

		if len(form.Questions) == 0 {
			problems = append(problems, where+": at least one question is required")
		}
		for j, q := range form.Questions {
			qwhere := fmt.Sprintf("%s.questions[%d]", where, j)
			switch {
			case q.ID == "":
				problems = append(problems, qwhere+": id is required")
			case questionIDs[q.ID]:
				problems = append(problems, fmt.Sprintf("%s: duplicate question id %q", qwhere, q.ID))
			}
			questionIDs[q.ID] = true

			if len(q.Options) < 2 {
				problems = append(problems, qwhere+": at least two options are required")
			}
			if len(q.Correct) == 0 {
				problems = append(problems, qwhere+": correct is required")
			}
			for _, c := range q.Correct {
				if c < 1 || c > len(q.Options) {
					problems = append(problems, fmt.Sprintf("%s: correct option %d out of range 1..%d", qwhere, c, len(q.Options)))
				}
			}
		}
	}

	rolls := map[string]bool{}
	for i, st := range f.Students {
		where := fmt.Sprintf("students[%d]", i)
		switch {
		case st.RollNumber == "":
			problems = append(problems, where+": roll_number is required")
		case rolls[st.RollNumber]:
			problems = append(problems, fmt.Sprintf("%s: duplicate roll number %q", where, st.RollNumber))
		}
		rolls[st.RollNumber] = true

		if st.Name == "" {
			problems = append(problems, where+": name is required")
		}
		if st.Phone != "" && !model.IsPhone(st.Phone) {
			problems = append(problems, fmt.Sprintf("%s: phone %q must be 10 digits", where, st.Phone))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid seed file:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// Form converts the entry into the stored form and its canonical questions.
func (sf SeedForm) Form() (model.Form, []model.Question) {
	form := model.Form{ID: sf.ID, CourseID: sf.CourseID, Title: sf.Title}
	questions := make([]model.Question, len(sf.Questions))
	for i, q := range sf.Questions {
		questions[i] = model.Question{
			ID:            q.ID,
			FormID:        sf.ID,
			Position:      i,
			QuestionText:  q.Question,
			Options:       q.Options,
			CorrectAnswer: q.Correct,
		}
	}
	return form, questions
}

// Student converts the entry into a student record.
func (ss SeedStudent) Student() *model.Student {
	return &model.Student{
		Name:       ss.Name,
		RollNumber: ss.RollNumber,
		College:    ss.College,
		Branch:     ss.Branch,
		University: ss.University,
		CourseID:   ss.CourseID,
		Phone:      ss.Phone,
	}
}

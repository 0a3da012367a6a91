package service

import (
	"strconv"

	"github.com/stemsi/exstem-portal/internal/model"
)

// Score counts the questions whose submitted option is in the correct set.
//
// Answers are keyed by question id. A key that matches no question id but
// parses as a 0-based canonical position is accepted for clients that still
// submit positionally. Unknown keys are ignored.
func Score(questions []model.Question, answers map[string]int) int {
	byID := make(map[string]int, len(answers))
	byPosition := make(map[int]int)

	ids := make(map[string]struct{}, len(questions))
	for i := range questions {
		ids[questions[i].ID] = struct{}{}
	}

	for key, option := range answers {
		if _, ok := ids[key]; ok {
			byID[key] = option
			continue
		}
		if pos, err := strconv.Atoi(key); err == nil && pos >= 0 && pos < len(questions) {
			byPosition[pos] = option
		}
	}

	score := 0
	for i := range questions {
		q := &questions[i]
		option, ok := byID[q.ID]
		if !ok {
			option, ok = byPosition[i]
		}
		if ok && q.Accepts(option) {
			score++
		}
	}
	return score
}

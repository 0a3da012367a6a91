package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
)

// ExamHandler serves questions and accepts the final submission.
type ExamHandler struct {
	questions   QuestionService
	submissions SubmissionService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(questions QuestionService, submissions SubmissionService) *ExamHandler {
	return &ExamHandler{questions: questions, submissions: submissions}
}

// GetQuestions godoc
// GET /api/exam/questions?formId=
// Returns the shuffled, sanitized question set.
func (h *ExamHandler) GetQuestions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Error(c, apperror.ErrTokenRequired)
		return
	}

	res, err := h.questions.GetQuestions(c.Request.Context(), c.Query("formId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	questions := res.Questions
	if questions == nil {
		questions = []model.PublicQuestion{}
	}

	response.Success(c, http.StatusOK, gin.H{
		"formId":    res.FormID,
		"questions": questions,
		"metadata": gin.H{
			"totalQuestions": len(questions),
			"cacheHit":       res.CacheHit,
		},
	})
}

// Submit godoc
// POST /api/exam/submit
// Scores and records the answers. Only the first submission counts.
func (h *ExamHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Error(c, apperror.ErrTokenRequired)
		return
	}

	var req model.SubmitRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.submissions.Submit(c.Request.Context(), claims, req.Answers)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"totalQuestions": res.TotalQuestions})
}

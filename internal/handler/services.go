package handler

import (
	"context"

	"github.com/stemsi/exstem-portal/internal/service"
)

// The handlers depend on these views of the services.

type OTPService interface {
	RequestCode(ctx context.Context, in service.SendOTPInput) error
	VerifyCode(ctx context.Context, phone, code string) (string, error)
}

type IdentityService interface {
	ClaimSession(ctx context.Context, in service.ClaimInput) (*service.ClaimResult, error)
	SessionInfo(ctx context.Context, claims *service.Claims) (*service.ClaimResult, error)
	Release(ctx context.Context, claims *service.Claims) error
}

type QuestionService interface {
	GetQuestions(ctx context.Context, formID string, claims *service.Claims) (*service.QuestionsResult, error)
}

type SubmissionService interface {
	Submit(ctx context.Context, claims *service.Claims, answers map[string]int) (*service.SubmitResult, error)
}

package model

import "time"

// SessionData records which device currently occupies a student's exam slot.
type SessionData struct {
	IsActive  bool       `json:"isActive"`
	StartTime *time.Time `json:"startTime,omitempty"`
	DeviceID  string     `json:"deviceId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// OccupiedAt reports whether the slot is held by a live session at now.
// A session flagged active whose expiry has passed counts as free.
func (s SessionData) OccupiedAt(now time.Time) bool {
	return s.IsActive && s.ExpiresAt != nil && s.ExpiresAt.After(now)
}

// VerifyRollRequest is the payload for claiming an exam session.
type VerifyRollRequest struct {
	RollNumber string `json:"rollNumber" binding:"required,min=1,max=50"`
	Token      string `json:"token" binding:"required"`
}

// SubmitRequest carries the final answer map keyed by question id.
type SubmitRequest struct {
	Answers map[string]int `json:"answers" binding:"required"`
}

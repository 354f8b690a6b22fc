package practices

import "time"

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
	DateLayout       = "2006-01-02"
)

// 実験種目の登録・更新
type CreatePracticeRequest struct {
	CourseName string `json:"course_name" binding:"required"`
	Title      string `json:"title" binding:"required"`
}

type UpdatePracticeRequest struct {
	CourseName *string `json:"course_name,omitempty"`
	Title      *string `json:"title,omitempty"`
	IsDisabled *bool   `json:"is_disabled,omitempty"`
}

type PracticeResponse struct {
	PracticeID uint64 `json:"practice_id"`
	CourseName string `json:"course_name"`
	Title      string `json:"title"`
	IsDisabled bool   `json:"is_disabled"`
}

// 実施記録の登録（group_number + held_on でUPSERT）
type CreateSessionRequest struct {
	GroupNumber string  `json:"group_id" binding:"required"`
	PracticeID  uint64  `json:"practice_id" binding:"required"`
	HeldOn      *string `json:"held_on,omitempty"` // "YYYY-MM-DD" or "today"
	Note        *string `json:"note,omitempty"`
}

type SessionResponse struct {
	SessionID   uint64    `json:"session_id"`
	GroupNumber string    `json:"group_id"`
	PracticeID  uint64    `json:"practice_id"`
	HeldOn      string    `json:"held_on"` // YYYY-MM-DD
	RecordedAt  time.Time `json:"recorded_at"`
	Note        *string   `json:"note,omitempty"`
}

type SessionListQuery struct {
	GroupNumber *string
	PracticeID  *uint64
	From        *string
	To          *string
	Limit       int
	Offset      int
}

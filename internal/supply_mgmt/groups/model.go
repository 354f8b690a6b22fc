package groups

import "time"

// LabGroup は lab_groups テーブルの1行（実験グループ）
type LabGroup struct {
	GroupNumber string    `json:"group_id"`
	Name        string    `json:"name"`
	CourseName  string    `json:"course_name"`
	IsDisabled  bool      `json:"is_disabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// Delegate は group_delegates テーブルの1行（グループの受領代表者）
type Delegate struct {
	DelegateNumber string `json:"delegate_id"`
	GroupNumber    string `json:"group_id"`
	StudentNumber  string `json:"student_number"`
	FullName       string `json:"full_name"`
}

type CreateGroupRequest struct {
	Name       string `json:"name" binding:"required"`
	CourseName string `json:"course_name" binding:"required"`
}

type UpdateGroupRequest struct {
	Name       *string `json:"name,omitempty"`
	CourseName *string `json:"course_name,omitempty"`
	IsDisabled *bool   `json:"is_disabled,omitempty"`
}

type CreateDelegateRequest struct {
	StudentNumber string `json:"student_number" binding:"required"`
	FullName      string `json:"full_name" binding:"required"`
}

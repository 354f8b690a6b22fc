package groups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysql "github.com/go-sql-driver/mysql"
)

// ---- Error model ----
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		case CodeConflict:
			return 409
		default:
			return 500
		}
	}
	return 500
}

// ---- Service ----

type Service struct {
	store *Store
}

func NewService(db *sql.DB) *Service { return &Service{store: NewStore(db)} }

func (s *Service) CreateGroup(ctx context.Context, in CreateGroupRequest) (*LabGroup, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.CourseName) == "" {
		return nil, ErrInvalid("name and course_name are required")
	}
	return s.store.CreateGroupTx(ctx, in)
}

func (s *Service) GetGroup(ctx context.Context, number string) (*LabGroup, error) {
	g, err := s.store.GetGroup(ctx, number)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound("group not found")
		}
		return nil, err
	}
	return g, nil
}

func (s *Service) ListGroups(ctx context.Context, includeDisabled bool) ([]LabGroup, error) {
	return s.store.ListGroups(ctx, includeDisabled)
}

func (s *Service) UpdateGroup(ctx context.Context, number string, in UpdateGroupRequest) (*LabGroup, error) {
	g, err := s.store.UpdateGroup(ctx, number, in)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound("group not found")
		}
		return nil, err
	}
	return g, nil
}

// 物理削除はしない（申請からの参照が残るため無効化のみ）
func (s *Service) DisableGroup(ctx context.Context, number string) error {
	disabled := true
	_, err := s.UpdateGroup(ctx, number, UpdateGroupRequest{IsDisabled: &disabled})
	return err
}

func (s *Service) AddDelegate(ctx context.Context, groupNumber string, in CreateDelegateRequest) (*Delegate, error) {
	if strings.TrimSpace(in.StudentNumber) == "" || strings.TrimSpace(in.FullName) == "" {
		return nil, ErrInvalid("student_number and full_name are required")
	}
	// グループ存在チェック
	if _, err := s.GetGroup(ctx, groupNumber); err != nil {
		return nil, err
	}
	d, err := s.store.AddDelegateTx(ctx, groupNumber, in)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) {
			switch me.Number {
			case 1062: // duplicate key
				return nil, ErrConflict("student is already a delegate of this group")
			case 1452: // foreign key constraint fails
				return nil, ErrInvalid("invalid group_id")
			}
		}
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDelegates(ctx context.Context, groupNumber string) ([]Delegate, error) {
	if _, err := s.GetGroup(ctx, groupNumber); err != nil {
		return nil, err
	}
	return s.store.ListDelegates(ctx, groupNumber)
}

func (s *Service) RemoveDelegate(ctx context.Context, delegateNumber string) error {
	n, err := s.store.RemoveDelegate(ctx, delegateNumber)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound("delegate not found")
	}
	return nil
}

package practices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
)

// ---- Error model ----
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
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

func (s *Service) CreatePractice(ctx context.Context, in CreatePracticeRequest) (*PracticeResponse, error) {
	if strings.TrimSpace(in.CourseName) == "" || strings.TrimSpace(in.Title) == "" {
		return nil, ErrInvalid("course_name and title are required")
	}
	id, err := s.store.InsertPractice(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.store.GetPractice(ctx, id)
}

func (s *Service) GetPractice(ctx context.Context, id uint64) (*PracticeResponse, error) {
	p, err := s.store.GetPractice(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound("practice not found")
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) ListPractices(ctx context.Context, includeDisabled bool) ([]PracticeResponse, error) {
	return s.store.ListPractices(ctx, includeDisabled)
}

func (s *Service) UpdatePractice(ctx context.Context, id uint64, in UpdatePracticeRequest) (*PracticeResponse, error) {
	p, err := s.store.UpdatePractice(ctx, id, in)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound("practice not found")
		}
		return nil, err
	}
	return p, nil
}

// RecordSession: group_number + held_on でUPSERT。
// held_on 省略 or "today" の場合はDB側の UTC_DATE() に委ねる。
func (s *Service) RecordSession(ctx context.Context, in CreateSessionRequest) (SessionResponse, bool, error) {
	if strings.TrimSpace(in.GroupNumber) == "" {
		return SessionResponse{}, false, ErrInvalid("group_id is required")
	}
	if in.PracticeID == 0 {
		return SessionResponse{}, false, ErrInvalid("practice_id is required")
	}
	heldOn, err := parseHeldOn(in.HeldOn)
	if err != nil {
		return SessionResponse{}, false, err
	}

	res, created, err := s.store.UpsertSession(ctx, strings.TrimSpace(in.GroupNumber), in.PracticeID, heldOn, in.Note)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1452 {
			return SessionResponse{}, false, ErrInvalid("invalid group_id or practice_id")
		}
		return SessionResponse{}, false, err
	}
	return res, created, nil
}

func (s *Service) ListSessions(ctx context.Context, q SessionListQuery) ([]SessionResponse, int64, error) {
	if q.From != nil && *q.From != "" {
		if _, err := time.Parse(DateLayout, *q.From); err != nil {
			return nil, 0, ErrInvalid("from must be YYYY-MM-DD")
		}
	}
	if q.To != nil && *q.To != "" {
		if _, err := time.Parse(DateLayout, *q.To); err != nil {
			return nil, 0, ErrInvalid("to must be YYYY-MM-DD")
		}
	}
	return s.store.ListSessions(ctx, q)
}

// "today"（大文字小文字無視）/ 空 / nil → nil（DB側でUTC_DATE()）
func parseHeldOn(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "today") {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return nil, ErrInvalid("held_on must be YYYY-MM-DD or \"today\"")
	}
	return &t, nil
}

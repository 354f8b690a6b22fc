package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysql "github.com/go-sql-driver/mysql"
)

// ===== Error model =====
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

// ===== Service =====

type Service struct {
	store *Store
}

func NewService(db *sql.DB) *Service { return &Service{store: NewStore(db)} }

func (s *Service) CreateItem(ctx context.Context, in CreateItemRequest) (ItemResponse, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Unit) == "" {
		return ItemResponse{}, ErrInvalid("name and unit are required")
	}
	if in.Stock < 0 {
		return ItemResponse{}, ErrInvalid("stock must be >= 0")
	}

	out, err := s.store.CreateItemTx(ctx, in)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 { // duplicate key
			return ItemResponse{}, ErrConflict("item_number already exists")
		}
		return ItemResponse{}, err
	}
	return *out, nil
}

func (s *Service) GetItem(ctx context.Context, itemNumber string) (ItemResponse, error) {
	out, err := s.store.GetByNumber(ctx, itemNumber)
	if err != nil {
		if err == sql.ErrNoRows {
			return ItemResponse{}, ErrNotFound("item not found")
		}
		return ItemResponse{}, err
	}
	return *out, nil
}

func (s *Service) ListItems(ctx context.Context, q ItemSearchQuery, p Page) ([]ItemResponse, int64, error) {
	return s.store.ListItems(ctx, q, p)
}

func (s *Service) UpdateItem(ctx context.Context, itemNumber string, in UpdateItemRequest) (ItemResponse, error) {
	if in.Stock != nil && *in.Stock < 0 {
		return ItemResponse{}, ErrInvalid("stock must be >= 0")
	}
	out, err := s.store.UpdateByNumber(ctx, itemNumber, in)
	if err != nil {
		if err == sql.ErrNoRows {
			return ItemResponse{}, ErrNotFound("item not found")
		}
		return ItemResponse{}, err
	}
	return *out, nil
}

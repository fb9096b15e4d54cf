package response

import (
	"net/http"

	"templeadmin/pkg/apperr"
)

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Page is the data envelope of paginated list endpoints
type Page struct {
	Items      interface{} `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Paged wraps one page of items with its pagination metadata
func Paged(items interface{}, page, limit int, total int64) Response {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Success(http.StatusOK, Page{
		Items:      items,
		Pagination: Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages},
	})
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// StatusCodeOf maps an error kind to its HTTP status. State is checked before
// NotFound and Validation before Conflict since those errors carry both kinds.
func StatusCodeOf(err error) int {
	switch {
	case apperr.Is(err, apperr.ErrPermission):
		return http.StatusForbidden
	case apperr.Is(err, apperr.ErrState):
		return http.StatusConflict
	case apperr.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case apperr.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case apperr.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromError builds the error response for err. Unclassified and transient
// failures get a generic message so storage details never reach clients.
func FromError(err error) (int, Response) {
	code := StatusCodeOf(err)
	if code == http.StatusInternalServerError {
		return code, Error(code, "internal server error")
	}
	return code, Error(code, err.Error())
}

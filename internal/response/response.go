package response

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/validation"
)

// JSON writes a successful API response with the given data.
func JSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.APIResponse{Data: data})
}

// Created writes data with 201 Created.
func Created(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.APIResponse{Data: data})
}

// JSONMeta writes a successful API response with pagination metadata.
func JSONMeta(w http.ResponseWriter, data interface{}, total, page, limit int) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.APIResponse{
		Data: data,
		Meta: &models.Meta{Total: total, Page: page, Limit: limit},
	})
}

// Err writes a JSON error response with the given message and HTTP status code.
func Err(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// DecodeBody decodes a JSON request body into the given value.
func DecodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// Error is an error that carries its HTTP status.
type Error struct {
	Code int
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Errorf returns an *Error with a formatted message.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns a 404 *Error for the named record.
func NotFound(what, id string) *Error {
	return &Error{Code: http.StatusNotFound, Msg: fmt.Sprintf("%s %s not found", what, id)}
}

// Conflict returns a 409 *Error.
func Conflict(format string, args ...any) *Error {
	return Errorf(http.StatusConflict, format, args...)
}

// BadRequest returns a 400 *Error.
func BadRequest(format string, args ...any) *Error {
	return Errorf(http.StatusBadRequest, format, args...)
}

// Status maps err to the HTTP status Fail would answer with.
func Status(err error) int {
	var re *Error
	var te *lifecycle.TransitionError
	var ve *validation.ValidationErrors
	switch {
	case errors.As(err, &re):
		return re.Code
	case errors.As(err, &te):
		return http.StatusConflict
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Fail writes err as a JSON error. Validation errors keep their field list;
// unknown errors are reported as a generic 500.
func Fail(w http.ResponseWriter, err error) {
	code := Status(err)
	var ve *validation.ValidationErrors
	switch {
	case code == http.StatusInternalServerError:
		Err(w, "internal server error", code)
	case errors.As(err, &ve):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": ve.Error(), "fields": ve.Errors})
	case errors.Is(err, sql.ErrNoRows):
		Err(w, "not found", code)
	default:
		Err(w, err.Error(), code)
	}
}

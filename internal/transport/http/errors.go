package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeMissingRequiredField = "missing_required_field"
	codeInvalidID            = "invalid_id"
	codeInvalidAddress       = "invalid_address"
	codeInvalidAmount        = "invalid_amount"
	codeInvalidSignature     = "invalid_signature"
	codeInvalidCapability    = "invalid_capability"
	codeInvalidRole          = "invalid_role"
	codeUnauthenticated      = "unauthenticated"
	codeForbidden            = "forbidden"
	codeStateConflict        = "state_conflict"
	codeValueMismatch        = "value_mismatch"
	codeInvariantViolation   = "invariant_violation"
	codeInsufficientBalance  = "insufficient_balance"
	codeTooManyRequests      = "too_many_requests"
	codeUnavailable          = "unavailable"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// requestError is a failure the gateway detects before reaching the node.
type requestError struct {
	status int
	code   string
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(code, msg string) error {
	return &requestError{status: http.StatusBadRequest, code: code, msg: msg}
}

func writeError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, errorResponse{Error: msg, Code: code})
}

// statusForError maps an error to its HTTP status and code. Ledger errors are
// mapped by kind.
func statusForError(err error) (int, string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.status, reqErr.code
	}
	switch domain.Kind(err) {
	case domain.ErrUnauthorized:
		return http.StatusForbidden, codeForbidden
	case domain.ErrNotFound:
		return http.StatusNotFound, codeNotFound
	case domain.ErrStateConflict:
		return http.StatusConflict, codeStateConflict
	case domain.ErrValueMismatch:
		return http.StatusUnprocessableEntity, codeValueMismatch
	case domain.ErrInvariantViolation:
		return http.StatusUnprocessableEntity, codeInvariantViolation
	case domain.ErrInsufficientBalance:
		return http.StatusUnprocessableEntity, codeInsufficientBalance
	default:
		return http.StatusInternalServerError, codeInternalError
	}
}

// errorHandler renders every error returned by a handler as an errorResponse.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			status := httpErr.Code
			code := codeInternalError
			msg := http.StatusText(status)
			switch status {
			case http.StatusNotFound:
				code, msg = codeNotFound, "not found"
			case http.StatusMethodNotAllowed:
				code, msg = codeMethodNotAllowed, "method not allowed"
			case http.StatusUnauthorized:
				code = codeUnauthenticated
			case http.StatusBadRequest:
				code = codeInvalidRequestBody
			}
			_ = writeError(c, status, code, msg)
			return
		}

		status, code := statusForError(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"err", err,
			)
			msg = "internal error"
		}
		_ = writeError(c, status, code, msg)
	}
}

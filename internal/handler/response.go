package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every JSON error response has the same shape:
//   {"error": "not_found", "message": "creator not found with id bob"}
//
// The QR endpoint is the one exception: browsers there consume
//   {"success": false, "error": "Invalid amount."}
// so it uses writeQRError, which shares the same status mapping.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/payapp/internal/apperror"
)

const msgInternal = "An internal error occurred"

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written. Once Encode
// writes, the headers are on the wire and later changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, so logging is all we can do.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status code and sends it.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer does not know about HTTP. It returns apperror kinds and
// this function decides that ErrNotFound means 404.
func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	writeJSON(w, status, ErrorResponse{Error: kind, Message: publicMessage(err)})
}

// statusFor is the single error → HTTP status table.
//
// errors.Is walks the chain through AppError.Unwrap to the sentinel, so the
// mapping works no matter how many times the error was wrapped.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, apperror.ErrMissingPaymentID):
		return http.StatusUnprocessableEntity, "missing_payment_id"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// publicMessage is the text a client may see. Storage failures and unknown
// errors get a generic message: their text can contain SQL, file paths or
// bucket names.
func publicMessage(err error) string {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || errors.Is(err, apperror.ErrStorage) {
		return msgInternal
	}
	return appErr.Message
}

// fieldErrors returns the per-field messages of a form error. Errors without
// fields land under "__all__", which base.html shows above the form.
func fieldErrors(err error) map[string]string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && len(appErr.Fields) > 0 {
		return appErr.Fields
	}
	return map[string]string{"__all__": publicMessage(err)}
}

// logIfInternal logs 5xx errors with their hidden cause. 4xx errors are the
// client's problem and are already visible in the request log.
func logIfInternal(logger *slog.Logger, r *http.Request, err error) {
	if status, _ := statusFor(err); status < http.StatusInternalServerError {
		return
	}
	cause := err.Error()
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Cause != nil {
		cause = appErr.Cause.Error()
	}
	logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("requestID", middleware.GetReqID(r.Context())),
		slog.String("error", cause),
	)
}

// Package service holds payapp's business rules.
//
// LAYERING:
//
//	Handler (HTTP) → Service (rules, validation, orchestration) → Repository (SQL)
//
// Services never see http.Request, and never build SQL. Every error they
// return is an *apperror.AppError, so handlers can map it to a status code
// with errors.Is and show AppError.Message without leaking internals.
package service

import (
	"log/slog"

	"github.com/sakif/payapp/internal/apperror"
)

// storageErr passes AppErrors from the repository through untouched
// (NotFound, DuplicateField) and wraps anything else as ErrStorage.
func storageErr(logger *slog.Logger, op string, err error) error {
	if apperror.IsKind(err) {
		return err
	}
	logger.Error("storage failure", slog.String("op", op), slog.String("error", err.Error()))
	return apperror.Storage(op, err)
}

package repositories

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
)

// NotFound returns a 404 HTTP error with a descriptive message
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// Conflict returns a 409 HTTP error with a descriptive message
func Conflict(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf(format, args...))
}

// BadRequest returns a 400 HTTP error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// Internal returns a 500 HTTP error. The cause is logged by the caller, never returned.
func Internal(message string) error {
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}

// IsStatus reports whether err is an HTTP error with the given status code
func IsStatus(err error, code int) bool {
	return err != nil && httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == code
}

// Repository provides common database operations
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new base repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// DB returns the database instance
func (r *Repository) DB() database.DB {
	return r.db
}

// Queryer returns the transaction carried by ctx, or the pool when there is none
func (r *Repository) Queryer(ctx context.Context) database.Queryer {
	if tx := database.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db
}

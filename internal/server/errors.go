package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/specsheet/internal/pipeline"
	"github.com/jonathan/specsheet/internal/reconcile"
	"github.com/jonathan/specsheet/internal/rendering"
	"github.com/jonathan/specsheet/internal/session"
	"github.com/jonathan/specsheet/internal/types"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr *ErrValidation
		fieldErrs     validator.ValidationErrors
		langErr       *pipeline.UnknownLanguageError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &fieldErrs), errors.As(err, &langErr),
		errors.Is(err, types.ErrNoURLs):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound), errors.Is(err, reconcile.ErrNotFound),
		errors.Is(err, rendering.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrNoData):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the text sent to clients. Document failures are reported
// generically; the details are in the log.
func publicMessage(err error) string {
	var (
		renderErr   *rendering.RenderError
		templateErr *rendering.TemplateError
	)
	switch {
	case errors.As(err, &renderErr), errors.As(err, &templateErr):
		return "export failed"
	case HTTPStatus(err) == http.StatusInternalServerError:
		return "internal server error"
	}
	return err.Error()
}

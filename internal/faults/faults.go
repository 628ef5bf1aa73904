// Package faults defines the failure categories shared across the
// resolution pipeline. Every component wraps one of these sentinels with
// fmt.Errorf("...: %w", ...) so handlers can map a failure to an HTTP
// status without knowing which stage produced it.
package faults

import (
	"errors"
	"net/http"
)

var (
	// ErrUnsupportedFormat: request body is neither a JSON object nor an
	// XML document.
	ErrUnsupportedFormat = errors.New("unsupported request format")

	// ErrNoProfileMatch: no configured profile's conditions matched.
	ErrNoProfileMatch = errors.New("no profile matches request")

	// ErrValidation: request failed schema validation after matching.
	ErrValidation = errors.New("request validation failed")

	// ErrArgument: caller-supplied value missing or unusable.
	ErrArgument = errors.New("invalid argument")

	// ErrConfiguration: profile/SQL/field-list defect. Not recoverable
	// in-process; fix the deployment.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataQuery: the lookup database failed at the driver level.
	ErrDataQuery = errors.New("data query failed")

	// ErrNoDataFound: a single-row lookup returned zero rows.
	ErrNoDataFound = errors.New("no data found")

	// ErrSchemaMismatch: query result columns do not cover the
	// configured result fields.
	ErrSchemaMismatch = errors.New("result schema mismatch")

	// ErrTemplate: printer template is missing the quantity command.
	ErrTemplate = errors.New("template error")

	// ErrInternal: contract violation between components, never a user error.
	ErrInternal = errors.New("internal error")
)

// HTTPStatus maps a pipeline error to the status code handlers report.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrNoProfileMatch),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoDataFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDataQuery),
		errors.Is(err, ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrTemplate):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moogar0880/problems"

	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
)

const problemMediaType = "application/problem+json"

// Problem type identifiers
const (
	ProblemValidation    = "validation_error"
	ProblemNotAuthorized = "not_authorized"
	ProblemNotApprovable = "not_approvable"
	ProblemTerminal      = "terminal_state"
	ProblemDangling      = "dangling_step_reference"
	ProblemConflict      = "conflict"
	ProblemNotFound      = "not_found"
	ProblemInternal      = "internal_error"
)

// classify maps a service error to its HTTP status and problem type
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domainwf.ErrValidation):
		return http.StatusBadRequest, ProblemValidation
	case errors.Is(err, domainwf.ErrNotAuthorized):
		return http.StatusForbidden, ProblemNotAuthorized
	case errors.Is(err, domainwf.ErrNotApprovable):
		return http.StatusUnprocessableEntity, ProblemNotApprovable
	case errors.Is(err, domainwf.ErrTerminalState):
		return http.StatusUnprocessableEntity, ProblemTerminal
	case errors.Is(err, domainwf.ErrDanglingStepReference):
		return http.StatusUnprocessableEntity, ProblemDangling
	case errors.Is(err, domainwf.ErrConflict):
		return http.StatusConflict, ProblemConflict
	case errors.Is(err, domainwf.ErrStepNotFound), errors.Is(err, domainwf.ErrRequestNotFound):
		return http.StatusNotFound, ProblemNotFound
	default:
		return http.StatusInternalServerError, ProblemInternal
	}
}

// respondError writes err as a problem document
func respondError(c *gin.Context, err error) {
	status, kind := classify(err)

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Request.URL.Path).
		WithType(kind)
	if status == http.StatusInternalServerError {
		problem = problem.WithDetail("internal error")
	} else {
		problem = problem.WithDetail(err.Error())
	}

	c.Header("Content-Type", problemMediaType)
	c.JSON(status, problem)
}

// badRequest reports a malformed body or query
func badRequest(c *gin.Context, detail string) {
	problem := problems.NewStatusProblem(http.StatusBadRequest).
		WithInstance(c.Request.URL.Path).
		WithType(ProblemValidation).
		WithDetail(detail)

	c.Header("Content-Type", problemMediaType)
	c.JSON(http.StatusBadRequest, problem)
}

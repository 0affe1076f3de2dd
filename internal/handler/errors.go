package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examcore/internal/engine"
	"github.com/stemsi/exstem-examcore/internal/response"
	"github.com/stemsi/exstem-examcore/internal/service"
)

// classify maps a service error onto an HTTP status and response code.
// notFound is the code reported for engine.ErrNotFound.
func classify(err error, notFound response.ErrCode) (int, response.ErrCode) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, notFound
	case errors.Is(err, engine.ErrAttemptTerminal):
		return http.StatusConflict, response.ErrAttemptTerminal
	case errors.Is(err, engine.ErrAttemptNotActive):
		return http.StatusConflict, response.ErrAttemptNotActive
	case errors.Is(err, engine.ErrInvalidPayload):
		return http.StatusBadRequest, response.ErrInvalidPayload
	case errors.Is(err, service.ErrExamNotAvailable):
		return http.StatusForbidden, response.ErrExamNotAvailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// fail writes the error response for err. Unclassified errors are logged
// through the request-scoped logger.
func fail(c *gin.Context, err error, notFound response.ErrCode) {
	status, code := classify(err, notFound)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}

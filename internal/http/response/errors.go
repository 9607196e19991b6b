package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
)

// RespondServiceError maps the service sentinels onto HTTP statuses.
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		RespondError(c, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, errs.ErrForbidden):
		RespondError(c, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, errs.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, errs.ErrConflict):
		RespondError(c, http.StatusConflict, "conflict", err)
	case errors.Is(err, errs.ErrConfigLocked):
		RespondError(c, http.StatusBadRequest, "config_locked", err)
	case errors.Is(err, errs.ErrIllegalState):
		RespondError(c, http.StatusBadRequest, "illegal_state", err)
	case errors.Is(err, errs.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}

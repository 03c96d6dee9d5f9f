package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/authflow/internal/usecase"
)

// KindCase maps an error kind to an HTTP status code.
type KindCase struct {
	Kind   usecase.ErrorKind
	Status int
}

var defaultKindCases = []KindCase{
	{Kind: usecase.KindValidation, Status: http.StatusBadRequest},
	{Kind: usecase.KindNotFound, Status: http.StatusNotFound},
	{Kind: usecase.KindConflict, Status: http.StatusConflict},
	{Kind: usecase.KindUnauthorized, Status: http.StatusUnauthorized},
	{Kind: usecase.KindForbidden, Status: http.StatusForbidden},
	{Kind: usecase.KindExpired, Status: http.StatusGone},
}

// RespondWithMappedError resolves err against the kind table. Untagged and
// internal errors are recorded on the gin context and answered with
// fallbackMessage so infrastructure details never leak.
func RespondWithMappedError(c *gin.Context, err error, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	kind := usecase.KindOf(err)
	for _, kc := range defaultKindCases {
		if kc.Kind == kind {
			c.JSON(kc.Status, NewErrorResponse(c, usecase.CodeOf(err), err.Error()))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, NewErrorResponse(c, usecase.CodeOf(err), fallbackMessage))
}

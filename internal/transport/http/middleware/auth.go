package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/usecase"
)

const userKey = "auth_user"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   message,
		Code:    code,
		TraceID: GetTraceID(c),
	})
}

// RequireAuth authorizes the bearer token in the Authorization header.
// With roles set, the user must hold one of them. The resolved user is
// available through CurrentUser and usecase.UserFromContext.
func RequireAuth(authorizer *usecase.Authorizer, roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := authorizer.Authorize(c.Request.Context(), c.GetHeader("Authorization"), roles...)
		if err != nil {
			var typed *usecase.Error
			switch {
			case errors.As(err, &typed) && typed.Kind == usecase.KindForbidden:
				abortWithError(c, http.StatusForbidden, typed.Code, typed.Message)
			case errors.As(err, &typed) && typed.Kind == usecase.KindUnauthorized:
				abortWithError(c, http.StatusUnauthorized, typed.Code, typed.Message)
			default:
				_ = c.Error(err)
				abortWithError(c, http.StatusInternalServerError, "internal_error", "authentication failed")
			}
			return
		}

		c.Set(userKey, user)
		c.Request = c.Request.WithContext(usecase.WithUser(c.Request.Context(), user))

		c.Next()
	}
}

// CurrentUser returns the user stored by RequireAuth.
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	value, exists := c.Get(userKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*domain.User)
	return user, ok && user != nil
}

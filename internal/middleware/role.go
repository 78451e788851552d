package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/upl-platform/exam-portal/internal/model"
	"github.com/upl-platform/exam-portal/internal/response"
)

// RequireRole lets the request through when the token's role is one of
// roles. code is the error sent otherwise.
func RequireRole(code response.ErrCode, roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, code)
	}
}

// RequireStudent admits student tokens only.
func RequireStudent() gin.HandlerFunc {
	return RequireRole(response.ErrStudentAccessOnly, model.RoleStudent)
}

// RequireStaff admits teachers and administrators.
func RequireStaff() gin.HandlerFunc {
	return RequireRole(response.ErrStaffAccessOnly, model.RoleTeacher, model.RoleAdmin)
}

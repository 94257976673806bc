package middleware

import (
	"net/http"

	"github.com/coutlabs/cout-backend/api/responses"
	"github.com/coutlabs/cout-backend/pkg/enums"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
	"github.com/coutlabs/cout-backend/pkg/logger"
)

var roleRank = map[enums.UserRole]int{
	enums.UserRoleUser:       1,
	enums.UserRoleManager:    2,
	enums.UserRoleAdmin:      3,
	enums.UserRoleSuperAdmin: 4,
}

// RequireRole rejects requests whose actor ranks below the given role.
func RequireRole(minRole enums.UserRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := enums.UserRole(RoleFromContext(r.Context()))
			if roleRank[actor] < roleRank[minRole] {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	internal_jwt "chatdesk-backend/internal/jwt"
)

type contextKey string

const operatorContextKey contextKey = "operator"

// OperatorFromContext returns the authenticated operator placed on the
// request by ValidateOperatorJWT.
func OperatorFromContext(ctx context.Context) (internal_jwt.Operator, bool) {
	operator, ok := ctx.Value(operatorContextKey).(internal_jwt.Operator)
	return operator, ok
}

func ValidateJWTMiddleware(role internal_jwt.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")

			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			claims, err := internal_jwt.ParseToken(tokenString, role)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			expires := int64(claims["exp"].(float64))
			if time.Now().Unix() > expires {
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}

			operator := internal_jwt.Operator{}
			if id, ok := claims["id"].(string); ok {
				operator.Id = id
			}
			if email, ok := claims["email"].(string); ok {
				operator.Email = email
			}
			if tenantID, ok := claims["tenantId"].(string); ok {
				operator.TenantId = tenantID
			}
			if operator.TenantId == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), operatorContextKey, operator)
			next(w, r.WithContext(ctx))
		}
	}
}

var ValidateOperatorJWT = ValidateJWTMiddleware(internal_jwt.RoleOperator)

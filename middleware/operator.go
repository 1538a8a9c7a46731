// middleware/operator.go
package middleware

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	OperatorIDKey = "operator_id"
	RolesKey      = "operator_roles"
	RequestIDKey  = "request_id"
)

// OperatorContextMiddleware records who issued the request (judge/admin identity as set
// by the gateway) and tags it with a request id. It does not authenticate.
func OperatorContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		operatorID := strings.TrimSpace(c.Get("X-User-ID"))
		if operatorID == "" {
			operatorID = "anonymous"
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("X-Request-ID", requestID)

		c.Locals(OperatorIDKey, operatorID)
		c.Locals(RolesKey, roles)
		c.Locals(RequestIDKey, requestID)

		if c.Method() != fiber.MethodGet {
			log.Printf("👤 [OPERATOR] %s %s by %s roles=%v request=%s", c.Method(), c.Path(), operatorID, roles, requestID)
		}
		return c.Next()
	}
}

// Operator returns the operator id stored by OperatorContextMiddleware.
func Operator(c *fiber.Ctx) string {
	if id, ok := c.Locals(OperatorIDKey).(string); ok {
		return id
	}
	return "anonymous"
}

// RequestTimeout attaches a deadline to the request's user context. The engine has no
// internal cancellation; callers bound the work.
func RequestTimeout(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if timeout <= 0 {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

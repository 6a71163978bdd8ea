package middleware

import (
	"crypto/subtle"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
)

// AdminUser is the user name expected in the admin Basic Auth credentials.
const AdminUser = "admin"

// AdminAuth handles admin authentication
type AdminAuth struct {
	adminPassword string
}

// NewAdminAuth creates a new admin auth middleware
func NewAdminAuth(adminPassword string) *AdminAuth {
	return &AdminAuth{
		adminPassword: adminPassword,
	}
}

// AuthMiddleware returns the admin Basic Auth middleware. An empty admin
// password rejects every request.
func (a *AdminAuth) AuthMiddleware() fiber.Handler {
	return basicauth.New(basicauth.Config{
		Realm: "Admin",
		Authorizer: func(user, pass string) bool {
			if a.adminPassword == "" {
				return false
			}
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(AdminUser)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(a.adminPassword)) == 1
			return userOK && passOK
		},
		Unauthorized: func(c *fiber.Ctx) error {
			slog.Debug("Admin authentication failed", "path", c.Path(), "ip", c.IP())
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="Admin"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Admin authentication required",
			})
		},
	})
}

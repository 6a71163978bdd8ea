package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminApp(password string) *fiber.App {
	app := fiber.New()
	app.Get("/admin", NewAdminAuth(password).AuthMiddleware(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name     string
		password string
		user     string
		pass     string
		noAuth   bool
		want     int
	}{
		{name: "valid credentials", password: "secret", user: "admin", pass: "secret", want: fiber.StatusOK},
		{name: "wrong password", password: "secret", user: "admin", pass: "nope", want: fiber.StatusUnauthorized},
		{name: "wrong user", password: "secret", user: "root", pass: "secret", want: fiber.StatusUnauthorized},
		{name: "no credentials", password: "secret", noAuth: true, want: fiber.StatusUnauthorized},
		{name: "no admin password configured", password: "", user: "admin", pass: "", want: fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newAdminApp(tt.password)
			req := httptest.NewRequest("GET", "/admin", nil)
			if !tt.noAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
			if tt.want == fiber.StatusUnauthorized {
				assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")
			}
		})
	}
}

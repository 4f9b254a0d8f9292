package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-admin-secret"

func signToken(t *testing.T, method jwt.SigningMethod, secret string, permissions []string, expires time.Time) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expires)},
		Username:         "moderator",
		Permissions:      permissions,
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func TestRequireAdmin(t *testing.T) {
	future := time.Now().Add(time.Hour)
	testCases := []struct {
		name     string
		header   string
		expected int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"not bearer", "Basic abc", fiber.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, "other", []string{"admin"}, future), fiber.StatusUnauthorized},
		{"wrong algorithm", "Bearer " + signToken(t, jwt.SigningMethodHS512, testSecret, []string{"admin"}, future), fiber.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, []string{"admin"}, time.Now().Add(-time.Minute)), fiber.StatusUnauthorized},
		{"no admin permission", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, []string{"read:profile"}, future), fiber.StatusForbidden},
		{"admin", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, []string{"admin"}, future), fiber.StatusOK},
	}

	app := fiber.New()
	app.Use("/admin", RequireAdmin(NewJWTVerifier(testSecret)))
	app.Get("/admin/ping", func(c fiber.Ctx) error {
		username, _ := c.Locals(UsernameKey).(string)
		return c.SendString(username)
	})

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin/ping", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != tc.expected {
				t.Errorf("Expected status %d, got %d", tc.expected, resp.StatusCode)
			}
			if tc.expected == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != "moderator" {
					t.Errorf("Expected the verified username in locals, got %q", body)
				}
			}
		})
	}
}

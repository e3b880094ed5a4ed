package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	supa "github.com/supabase-community/supabase-go"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

const userIDKey = "user_id"

// TokenVerifier resolves a bearer token to a user id
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// SupabaseVerifier checks access tokens against Supabase GoTrue
type SupabaseVerifier struct {
	client *supa.Client
}

// NewSupabaseVerifier creates a verifier for the project at supabaseURL.
func NewSupabaseVerifier(supabaseURL, anonKey string) (*SupabaseVerifier, error) {
	client, err := supa.NewClient(strings.TrimSuffix(supabaseURL, "/"), anonKey, nil)
	if err != nil {
		return nil, fmt.Errorf("init supabase client: %w", err)
	}
	return &SupabaseVerifier{client: client}, nil
}

// Verify returns the id of the user owning token.
func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	user, err := v.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return user.ID.String(), nil
}

// Auth requires a valid bearer token and stores the caller's user id.
func Auth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return unauthorized(c, "Missing bearer token")
		}

		uid, err := verifier.Verify(c.UserContext(), token)
		if err != nil || uid == "" {
			return unauthorized(c, "Invalid or expired token")
		}

		c.Locals(userIDKey, uid)
		return c.Next()
	}
}

// CronSecret protects the scheduled-run trigger with a shared secret sent
// as a bearer token or in X-Cron-Secret.
func CronSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get("X-Cron-Secret")
		if got == "" {
			got = bearerToken(c)
		}
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return unauthorized(c, "Invalid cron secret")
		}
		return c.Next()
	}
}

// UserID returns the authenticated user id, or "" when the route is not
// behind Auth.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(userIDKey).(string)
	return uid
}

func bearerToken(c *fiber.Ctx) string {
	h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "unauthorized",
		"message": message,
	})
}

package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/retry"
	"github.com/mylife-as-miles/Jobraker-sub002/pkg/logger"
)

// respondError maps an error class onto a status code and JSON body.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "Not allowed to act for this user",
		})
	case domain.IsRateLimited(err):
		seconds, _ := retry.RetryAfter(err)
		if seconds > 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))
		}
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":             "rate_limited",
			"retryAfterSeconds": seconds,
		})
	}

	logger.Error("Request failed",
		zap.String("path", c.Path()),
		zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
		zap.Error(err),
	)
	code := "internal_error"
	if errors.Is(err, domain.ErrStorage) {
		code = "storage_error"
	} else if _, ok := domain.AsUpstream(err); ok {
		code = "upstream_error"
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   code,
		"message": err.Error(),
	})
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "invalid_request",
		"message": "Invalid request body",
	})
}

func validationFailed(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "invalid_request",
		"message": strings.Join(formatValidationErrors(err), ", "),
	})
}

func formatValidationErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		out = append(out, msg)
	}
	return out
}

package middleware

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MartenSchelker/QuotaGate/internal/pkg/entitlements"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/limiter"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/subscription"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/usercontext"
)

const (
	HeaderHourlyRemaining  = "X-RateLimit-Hourly-Remaining"
	HeaderDailyRemaining   = "X-RateLimit-Daily-Remaining"
	HeaderMonthlyRemaining = "X-RateLimit-Monthly-Remaining"
)

// RateLimitConfig wires the rate limiter middleware. Provider, Engine and
// Limits are required; the hooks are optional.
type RateLimitConfig struct {
	Provider subscription.Provider
	Engine   *limiter.Engine
	Limits   *entitlements.Config

	// GetUserID extracts the rate-limit subject from the request. Defaults
	// to the authenticated user context set by the API key middleware.
	GetUserID func(c *fiber.Ctx) (string, error)

	// ShouldSkip short-circuits limiting for a request (admin bypass,
	// health checks). Nil means never skip.
	ShouldSkip func(c *fiber.Ctx) bool
}

// rateLimitExceededResponse is the 429 body contract.
type rateLimitExceededResponse struct {
	Success       bool              `json:"success"`
	Error         string            `json:"error"`
	Message       string            `json:"message"`
	Remaining     limiter.Remaining `json:"remaining"`
	ExceededLimit string            `json:"exceededLimit"`
	Timestamp     string            `json:"timestamp"`
}

// RateLimitMiddleware admits or rejects each request against the caller's
// entitlement-derived budgets. Provider failures degrade to the "none" plan
// instead of failing the request; counter store failures surface as 500.
func RateLimitMiddleware(cfg RateLimitConfig) fiber.Handler {
	if cfg.Provider == nil || cfg.Engine == nil || cfg.Limits == nil {
		panic("rate limit middleware: Provider, Engine and Limits are required")
	}
	if cfg.GetUserID == nil {
		cfg.GetUserID = defaultGetUserID
	}

	return func(c *fiber.Ctx) error {
		if cfg.ShouldSkip != nil && cfg.ShouldSkip(c) {
			return c.Next()
		}

		userID, err := cfg.GetUserID(c)
		if err != nil || userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Could not identify requester"})
		}

		snapshot, err := cfg.Provider.Lookup(c.UserContext(), userID)
		if err != nil {
			// Degrade to the fallback plan rather than blocking traffic.
			log.Printf("rate limit: subscription lookup failed for user %s: %v", userID, err)
			snapshot = subscription.None()
		}

		limits := cfg.Limits.Resolve(snapshot.Entitlements)

		decision, err := cfg.Engine.CheckAndIncrement(c.UserContext(), userID, limits, snapshot.StartedAt)
		if err != nil {
			requestID := uuid.NewString()
			log.Printf("rate limit: check failed for user %s (request %s): %v", userID, requestID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":      "internal_server_error",
				"message":    "Rate limit check failed",
				"request_id": requestID,
			})
		}

		setRemainingHeaders(c, decision.Remaining)

		if !decision.Allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(rateLimitExceededResponse{
				Success:       false,
				Error:         "Rate limit exceeded",
				Message:       fmt.Sprintf("You have exceeded your %s request limit. Please try again later or upgrade your subscription.", decision.ExceededLimit),
				Remaining:     decision.Remaining,
				ExceededLimit: string(decision.ExceededLimit),
				Timestamp:     time.Now().UTC().Format(time.RFC3339),
			})
		}

		return c.Next()
	}
}

func setRemainingHeaders(c *fiber.Ctx, rem limiter.Remaining) {
	if rem.Hourly != nil {
		c.Set(HeaderHourlyRemaining, strconv.FormatInt(*rem.Hourly, 10))
	}
	if rem.Daily != nil {
		c.Set(HeaderDailyRemaining, strconv.FormatInt(*rem.Daily, 10))
	}
	if rem.Monthly != nil {
		c.Set(HeaderMonthlyRemaining, strconv.FormatInt(*rem.Monthly, 10))
	}
}

func defaultGetUserID(c *fiber.Ctx) (string, error) {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn || uc.UserID == 0 {
		return "", fmt.Errorf("no authenticated user in request context")
	}
	return strconv.FormatUint(uint64(uc.UserID), 10), nil
}

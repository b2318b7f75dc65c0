package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MartenSchelker/QuotaGate/app/repository"
	apiv1 "github.com/MartenSchelker/QuotaGate/internal/api/v1"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/entitlements"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/env"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/limiter"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/middleware"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/subscription"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/usercontext"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	limits, err := entitlements.LoadConfigFile(env.GetEnv("RATE_LIMITS_CONFIG", "config/rate_limits.json"))
	if err != nil {
		// A config without the "none" plan must never boot.
		panic(err)
	}

	engine := limiter.NewEngine(repository.GetGlobalFactory().GetCounterRepository())

	var provider subscription.Provider = subscription.NewClientFromEnv()
	if env.GetEnv("SUBSCRIPTION_CACHE_TTL", "") != "" {
		if ttl, err := time.ParseDuration(env.GetEnv("SUBSCRIPTION_CACHE_TTL", "")); err == nil && ttl > 0 {
			provider = subscription.NewCachedProvider(provider, ttl)
		}
	}

	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes: API key auth first, then per-user rate limiting.
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())

	apiServer := apiv1.NewAPIServer(provider, engine, limits)
	v1.Get("/user/usage", apiServer.GetUserUsage)
	v1.Get("/user/usage/history", apiServer.GetUserUsageHistory)

	limited := v1.Group("/", middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Provider: provider,
		Engine:   engine,
		Limits:   limits,
		ShouldSkip: func(c *fiber.Ctx) bool {
			// Admins are exempt from quota enforcement.
			return usercontext.IsAdmin(c)
		},
	}))
	limited.Get("/ping", apiServer.GetPing)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

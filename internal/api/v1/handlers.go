package apiv1

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/MartenSchelker/QuotaGate/internal/pkg/entitlements"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/limiter"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/period"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/subscription"
	"github.com/MartenSchelker/QuotaGate/internal/pkg/usercontext"
)

const maxHistoryLimit = 500

// APIServer serves the public usage endpoints.
type APIServer struct {
	Provider subscription.Provider
	Engine   *limiter.Engine
	Limits   *entitlements.Config
}

// NewAPIServer creates a new API server instance
func NewAPIServer(provider subscription.Provider, engine *limiter.Engine, limits *entitlements.Config) *APIServer {
	return &APIServer{Provider: provider, Engine: engine, Limits: limits}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}

// GetUserUsage returns the caller's current limits and headroom without
// consuming any quota.
func (s *APIServer) GetUserUsage(c *fiber.Ctx) error {
	userID, ok := requestUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Could not identify requester"})
	}

	snapshot, err := s.Provider.Lookup(c.UserContext(), userID)
	if err != nil {
		log.Printf("usage: subscription lookup failed for user %s: %v", userID, err)
		snapshot = subscription.None()
	}

	limits := s.Limits.Resolve(snapshot.Entitlements)
	decision, err := s.Engine.CheckOnly(c.UserContext(), userID, limits, snapshot.StartedAt)
	if err != nil {
		log.Printf("usage: check failed for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Usage lookup failed"})
	}

	return c.JSON(fiber.Map{
		"entitlements": snapshot.Entitlements,
		"limits":       decision.Limits,
		"remaining":    decision.Remaining,
		"allowed":      decision.Allowed,
	})
}

// GetUserUsageHistory returns past counter windows for one period type,
// most recent first.
func (s *APIServer) GetUserUsageHistory(c *fiber.Ctx) error {
	userID, ok := requestUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Could not identify requester"})
	}

	typ := period.Type(c.Query("period", string(period.Hourly)))
	if !typ.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "period must be hourly, daily or monthly"})
	}

	limit := c.QueryInt("limit", 0)
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	snapshot, err := s.Provider.Lookup(c.UserContext(), userID)
	if err != nil {
		log.Printf("usage history: subscription lookup failed for user %s: %v", userID, err)
		snapshot = subscription.None()
	}

	entries, err := s.Engine.History(c.UserContext(), userID, typ, snapshot.StartedAt, limit)
	if err != nil {
		log.Printf("usage history: read failed for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "History lookup failed"})
	}

	return c.JSON(fiber.Map{"period": typ, "history": entries})
}

func requestUserID(c *fiber.Ctx) (string, bool) {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn || uc.UserID == 0 {
		return "", false
	}
	return strconv.FormatUint(uint64(uc.UserID), 10), true
}

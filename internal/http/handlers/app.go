package handlers

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	applog "tradepost/internal/log"
)

// AppOptions tunes the middleware stack. Zero values take the defaults.
type AppOptions struct {
	CSRF              bool
	RequestsPerMinute int
	LoginAttempts     int
	AvailabilityLimit int
	TrafficLimit      int
	BodyLimit         int
	AccessLog         io.Writer // nil disables the access log
}

func (o AppOptions) withDefaults() AppOptions {
	if o.RequestsPerMinute == 0 {
		o.RequestsPerMinute = 120
	}
	if o.LoginAttempts == 0 {
		o.LoginAttempts = 5
	}
	if o.AvailabilityLimit == 0 {
		o.AvailabilityLimit = 15
	}
	if o.TrafficLimit == 0 {
		o.TrafficLimit = 30
	}
	if o.BodyLimit == 0 {
		o.BodyLimit = 1 << 20 // 1 MiB
	}
	return o
}

// NewApp builds the fiber app with middleware and every API route.
func NewApp(d *Deps, opts AppOptions) *fiber.App {
	opts = opts.withDefaults()

	app := fiber.New(fiber.Config{
		BodyLimit:    opts.BodyLimit,
		ErrorHandler: ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	if opts.AccessLog != nil {
		app.Use(logger.New(logger.Config{Output: opts.AccessLog}))
	}
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        opts.RequestsPerMinute,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.global.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}))
	if opts.CSRF {
		app.Use(csrf.New(csrf.Config{
			KeyLookup:      "header:X-Csrf-Token",
			CookieName:     "csrf_",
			CookieSameSite: "Lax",
			CookieSecure:   false, // set true behind HTTPS
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				applog.Security(c, "csrf.fail", nil)
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Security check failed. Please refresh and try again."})
			},
		}))
	}

	api := app.Group("/api/v1")

	api.Post("/login", limiter.New(limiter.Config{
		Max:        opts.LoginAttempts,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many attempts. Please try again later."})
		},
	}), d.AuthHandler.Login)
	api.Post("/logout", d.AuthHandler.Logout)

	api.Get("/availability", limiter.New(limiter.Config{
		Max:        opts.AvailabilityLimit,
		Expiration: 30 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|avail"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.availability.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}), d.InventoryHandler.Check)
	// one bucket per client IP and listing
	traffic := limiter.New(limiter.Config{
		Max:        opts.TrafficLimit,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|traffic|" + c.Params("id")
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.traffic.hit", map[string]any{"listing": c.Params("id")})
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	})
	api.Post("/listings/:id/view", traffic, d.PromotionHandler.View)
	api.Post("/listings/:id/click", traffic, d.PromotionHandler.Click)

	user := api.Group("", RequireUser(d.Auth))
	user.Post("/orders", d.OrderHandler.Place)
	user.Get("/orders", d.OrderHandler.History)
	user.Get("/orders/:id", d.OrderHandler.View)
	user.Post("/orders/:id/status", d.OrderHandler.UpdateStatus)
	user.Get("/notifications", d.InboxHandler.Notifications)
	user.Get("/conversations/:id/messages", d.InboxHandler.Messages)
	user.Post("/promotions", d.PromotionHandler.Start)
	user.Get("/promotions/:id/uplift", d.PromotionHandler.Uplift)
	user.Get("/me/promotions", d.PromotionHandler.Mine)

	admin := api.Group("/admin", RequireAdmin(d.Auth))
	admin.Get("/orders", d.AdminHandler.ListOrders)
	admin.Post("/orders/:id/status", d.AdminHandler.UpdateOrderStatus)

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	})
	return app
}

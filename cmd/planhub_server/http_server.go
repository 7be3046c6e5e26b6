package main

import (
	"log/slog"
	"runtime/pprof"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vkotov/planhub/internal/auth"
	"github.com/vkotov/planhub/pkg/log"
)

const identityKey = "identity"

type API struct {
	f    *fiber.App
	addr string
}

func NewAPI(app *App, addr string) *API {
	api := &API{addr: addr}

	api.f = fiber.New(fiber.Config{EnablePrintRoutes: false, DisableStartupMessage: true})

	api.f.Use(log.NewFiberLogger(&log.LoggerConfig{
		Name:          "api",
		UserGetter:    Username,
		DoMetrics:     true,
		LogErrorsOnly: true,
	}))

	api.f.Get("/stack", getStackHandler())
	api.f.Get("/metrics", getMetricsHandler())
	api.f.Post("/token", getTokenHandler(app))

	api.f.Use(getTokenAuth(app))

	api.f.Get("/ws", getWsHandler(app))

	api.f.Post("/api/projects/:id/invitations", createInvitationHandler(app))
	api.f.Get("/api/projects/:id/invitations", getProjectInvitationsHandler(app))
	api.f.Get("/api/invitations", getMyInvitationsHandler(app))
	api.f.Post("/api/invitations/token/:token/accept", acceptByTokenHandler(app))
	api.f.Post("/api/invitations/:id/accept", acceptInvitationHandler(app))
	api.f.Post("/api/invitations/:id/reject", rejectInvitationHandler(app))
	api.f.Post("/api/invitations/:id/resend", resendInvitationHandler(app))
	api.f.Delete("/api/invitations/:id", cancelInvitationHandler(app))

	return api
}

func (api *API) Listen() error {
	return api.f.Listen(api.addr)
}

func (api *API) Shutdown() error {
	return api.f.Shutdown()
}

// getTokenAuth verifies the bearer credential once, at handshake time, and
// attaches the identity to the request. No credential, no entry.
func getTokenAuth(app *App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := tokenFromRequest(c)

		user, err := app.verifier.Verify(tok)
		if err != nil {
			app.logger.Debug("auth failed", slog.Any("error", err))

			return c.SendStatus(fiber.StatusUnauthorized)
		}

		c.Locals(identityKey, user)

		return c.Next()
	}
}

func tokenFromRequest(c *fiber.Ctx) string {
	const prefix = "Bearer "

	h := c.Get(fiber.HeaderAuthorization)

	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}

	// browser websocket clients cannot set headers
	return c.Query("token")
}

func User(c *fiber.Ctx) *auth.Identity {
	if u, ok := c.Locals(identityKey).(*auth.Identity); ok {
		return u
	}

	return nil
}

func Username(c *fiber.Ctx) string {
	if u := User(c); u != nil {
		return u.Login
	}

	return ""
}

// getTokenHandler exchanges users-file credentials for a signed token. The
// production issuer is external, this keeps the server runnable on its own.
func getTokenHandler(app *App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Login    string `json:"login"`
			Password string `json:"password"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		if !app.users.CheckUserAuth(req.Login, req.Password) {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		token, err := app.verifier.Issue(app.users.GetUser(req.Login), app.config.TokenMaxAge())
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{"token": token})
	}
}

func getStackHandler() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		return pprof.Lookup("goroutine").WriteTo(ctx.Response().BodyWriter(), 1)
	}
}

func getMetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{DisableCompression: true},
	))
}

// Package webui exposes the engine over HTTP: agent and group management,
// chats, the social operations of the user, catch-up and a server-sent
// events stream of everything the engine appends.
package webui

import (
	"errors"
	"net/http"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/mudler/LocalCircle/core/engine"
	"github.com/mudler/LocalCircle/core/gift"
	"github.com/mudler/LocalCircle/core/lock"
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/xlog"
)

type App struct {
	config *Config
	engine *engine.Engine
	*fiber.App
}

func NewApp(opts ...Option) *App {
	config := NewConfig(opts...)

	webapp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	a := &App{
		config: config,
		engine: config.Engine,
		App:    webapp,
	}

	a.registerRoutes(webapp)

	return a
}

func errorJSONMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(struct {
		Error string `json:"error"`
	}{Error: message})
}

func statusJSONMessage(c *fiber.Ctx, message string) error {
	return c.JSON(struct {
		Status string `json:"status"`
	}{Status: message})
}

// engineError maps engine errors to HTTP statuses.
func engineError(c *fiber.Ctx, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrBlocked),
		errors.Is(err, engine.ErrInvalidState),
		errors.Is(err, gift.ErrAlreadyClaimed),
		errors.Is(err, gift.ErrFullyClaimed),
		errors.Is(err, gift.ErrNotRecipient):
		status = http.StatusConflict
	case lock.Skippable(err):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		xlog.Error("Request failed", "path", c.Path(), "error", err)
	}
	return errorJSONMessage(c, status, err.Error())
}

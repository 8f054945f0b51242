package webui

import (
	"crypto/subtle"
	"math/rand/v2"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (app *App) registerRoutes(webapp *fiber.App) {
	webapp.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(app.config.Gatherer, promhttp.HandlerOpts{})))

	if len(app.config.ApiKeys) > 0 {
		webapp.Use(keyauth.New(GetKeyAuthConfig(app.config.ApiKeys)))
	}

	webapp.Get("/sse", func(c *fiber.Ctx) error {
		id := c.Query("client")
		if id == "" {
			id = randStringRunes(10)
		}
		return app.config.Broadcaster.Handle(c, id)
	})

	webapp.Get("/api/agents", app.ListAgents())
	webapp.Post("/api/agent/create", app.CreateAgent())
	webapp.Get("/api/agent/:id", app.GetAgent())
	webapp.Delete("/api/agent/:id", app.DeleteAgent())
	webapp.Get("/api/agent/:id/relationships", app.Relationships())

	webapp.Post("/api/chat/:id", app.Chat())
	webapp.Post("/api/agent/:id/enter", app.Enter())
	webapp.Post("/api/agent/:id/block", app.Block())
	webapp.Post("/api/agent/:id/unblock", app.Unblock())
	webapp.Post("/api/agent/:id/approve", app.Approve())
	webapp.Post("/api/agent/:id/request", app.RequestFriend())
	webapp.Post("/api/gift/:scope/:timestamp", app.OpenGift())

	webapp.Get("/api/groups", app.ListGroups())
	webapp.Post("/api/group/create", app.CreateGroup())
	webapp.Get("/api/group/:id", app.GetGroup())
	webapp.Post("/api/group/:id/chat", app.GroupChat())

	webapp.Get("/api/settings", app.GetSettings())
	webapp.Put("/api/settings", app.UpdateSettings())
	webapp.Post("/api/resume", app.Resume())

	webapp.Get("/api/commands", app.ListCommands())
	webapp.Get("/api/meta/agent", app.GetAgentMeta())
}

var letterRunes = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

func randStringRunes(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letterRunes[rand.IntN(len(letterRunes))]
	}
	return string(b)
}

func GetKeyAuthConfig(apiKeys []string) keyauth.Config {
	return keyauth.Config{
		KeyLookup:  "header:Authorization",
		AuthScheme: "Bearer",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			for _, k := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		},
	}
}

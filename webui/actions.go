package webui

import (
	fiber "github.com/gofiber/fiber/v2"
	"github.com/mudler/LocalCircle/core/action"
	"github.com/mudler/LocalCircle/pkg/config"
)

type commandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      any    `json:"schema"`
}

// ListCommands returns the command catalog agents can use in their replies.
func (a *App) ListCommands() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		defs := action.Catalog()
		out := make([]commandInfo, 0, len(defs))
		for _, d := range defs {
			out = append(out, commandInfo{
				Name:        d.Name.String(),
				Description: d.Description,
				Schema:      d.Schema(),
			})
		}
		return c.JSON(out)
	}
}

// GetAgentMeta describes the agent creation form.
func (a *App) GetAgentMeta() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		groups, err := a.engine.Repository().Groups(c.Context())
		if err != nil {
			return engineError(c, err)
		}
		choices := make([]config.Choice, 0, len(groups))
		for _, g := range groups {
			choices = append(choices, config.Choice{Value: g.ID, Label: g.Name})
		}
		return c.JSON(config.AgentForm(choices))
	}
}

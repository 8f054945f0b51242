package webui

import (
	"strings"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/mudler/LocalCircle/core/engine"
	"github.com/mudler/LocalCircle/core/types"
)

// visible strips the hidden system lines that only feed the model.
func visible(agent *types.Agent) *types.Agent {
	out := *agent
	out.History = agent.History.Visible()
	return &out
}

func (a *App) ListAgents() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		agents, err := a.engine.Repository().Agents(c.Context())
		if err != nil {
			return engineError(c, err)
		}
		type summary struct {
			ID      string            `json:"id"`
			Name    string            `json:"name"`
			GroupID string            `json:"group_id,omitempty"`
			Status  types.Status      `json:"status"`
			Block   types.BlockStatus `json:"block"`
		}
		out := make([]summary, 0, len(agents))
		for _, ag := range agents {
			out = append(out, summary{ID: ag.ID, Name: ag.Name, GroupID: ag.GroupID, Status: ag.Status, Block: ag.Block})
		}
		return c.JSON(fiber.Map{
			"agents":     out,
			"agentCount": len(out),
		})
	}
}

func (a *App) CreateAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var spec engine.AgentSpec
		if err := c.BodyParser(&spec); err != nil {
			return errorJSONMessage(c, fiber.StatusBadRequest, "Invalid request")
		}
		if strings.TrimSpace(spec.Name) == "" {
			return errorJSONMessage(c, fiber.StatusBadRequest, "Name is required")
		}
		agent, err := a.engine.CreateAgent(c.Context(), spec)
		if err != nil {
			return engineError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(visible(agent))
	}
}

func (a *App) GetAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		agent, err := a.engine.Repository().Agent(c.Context(), c.Params("id"))
		if err != nil {
			return engineError(c, err)
		}
		return c.JSON(visible(agent))
	}
}

func (a *App) DeleteAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if err := a.engine.DeleteAgent(c.Context(), c.Params("id")); err != nil {
			return engineError(c, err)
		}
		return statusJSONMessage(c, "ok")
	}
}

func (a *App) Relationships() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		repo := a.engine.Repository()
		if _, err := repo.Agent(c.Context(), id); err != nil {
			return engineError(c, err)
		}
		rels, err := repo.RelationshipsOf(c.Context(), id)
		if err != nil {
			return engineError(c, err)
		}
		if rels == nil {
			rels = []*types.Relationship{}
		}
		return c.JSON(rels)
	}
}

func (a *App) GetSettings() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		settings, err := a.engine.Repository().Settings(c.Context())
		if err != nil {
			return engineError(c, err)
		}
		return c.JSON(settings)
	}
}

func (a *App) UpdateSettings() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var payload struct {
			UserName string `json:"user_name"`
		}
		if err := c.BodyParser(&payload); err != nil {
			return errorJSONMessage(c, fiber.StatusBadRequest, "Invalid request")
		}
		repo := a.engine.Repository()
		settings, err := repo.Settings(c.Context())
		if err != nil {
			return engineError(c, err)
		}
		settings.UserName = strings.TrimSpace(payload.UserName)
		if err := repo.SaveSettings(c.Context(), settings); err != nil {
			return engineError(c, err)
		}
		return c.JSON(settings)
	}
}

package webui

import (
	"strings"

	fiber "github.com/gofiber/fiber/v2"
)

func (a *App) ListGroups() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		groups, err := a.engine.Repository().Groups(c.Context())
		if err != nil {
			return engineError(c, err)
		}
		out := make([]fiber.Map, 0, len(groups))
		for _, g := range groups {
			out = append(out, fiber.Map{"id": g.ID, "name": g.Name, "lore_ids": g.LoreIDs})
		}
		return c.JSON(out)
	}
}

func (a *App) CreateGroup() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var payload struct {
			Name    string   `json:"name"`
			LoreIDs []string `json:"lore_ids"`
		}
		if err := c.BodyParser(&payload); err != nil {
			return errorJSONMessage(c, fiber.StatusBadRequest, "Invalid request")
		}
		if strings.TrimSpace(payload.Name) == "" {
			return errorJSONMessage(c, fiber.StatusBadRequest, "Name is required")
		}
		group, err := a.engine.CreateGroup(c.Context(), payload.Name, payload.LoreIDs)
		if err != nil {
			return engineError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(group)
	}
}

func (a *App) GetGroup() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		repo := a.engine.Repository()
		group, err := repo.Group(c.Context(), c.Params("id"))
		if err != nil {
			return engineError(c, err)
		}
		members, err := repo.Members(c.Context(), group.ID)
		if err != nil {
			return engineError(c, err)
		}
		names := make([]fiber.Map, 0, len(members))
		for _, m := range members {
			names = append(names, fiber.Map{"id": m.ID, "name": m.Name})
		}
		out := *group
		out.History = group.History.Visible()
		return c.JSON(fiber.Map{"group": out, "members": names})
	}
}

func (a *App) GroupChat() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		message, ok := messagePayload(c)
		if !ok {
			return errorJSONMessage(c, fiber.StatusBadRequest, "Message cannot be empty")
		}
		results, err := a.engine.GroupChat(c.Context(), c.Params("id"), message)
		if err != nil {
			return engineError(c, err)
		}
		replies := make([]*replyResponse, 0, len(results))
		for _, r := range results {
			replies = append(replies, toReply(r))
		}
		return c.JSON(fiber.Map{"replies": replies})
	}
}

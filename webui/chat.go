package webui

import (
	"strconv"
	"strings"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/mudler/LocalCircle/core/action"
	"github.com/mudler/LocalCircle/core/types"
)

type replyResponse struct {
	Applied     int             `json:"applied"`
	Skipped     int             `json:"skipped"`
	Adjustments int             `json:"adjustments"`
	Messages    []types.Message `json:"messages"`
}

func toReply(res *action.Result) *replyResponse {
	if res == nil {
		return nil
	}
	out := &replyResponse{
		Applied:     res.Applied,
		Skipped:     res.Skipped,
		Adjustments: res.Adjustments,
		Messages:    []types.Message{},
	}
	for _, m := range res.Messages {
		if !m.Hidden {
			out.Messages = append(out.Messages, m)
		}
	}
	return out
}

func messagePayload(c *fiber.Ctx) (string, bool) {
	var payload struct {
		Message string `json:"message" form:"message"`
	}
	if err := c.BodyParser(&payload); err != nil {
		return "", false
	}
	message := strings.TrimSpace(payload.Message)
	return message, message != ""
}

func (a *App) Chat() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		message, ok := messagePayload(c)
		if !ok {
			return errorJSONMessage(c, fiber.StatusBadRequest, "Message cannot be empty")
		}
		res, err := a.engine.Chat(c.Context(), c.Params("id"), message)
		if err != nil {
			return engineError(c, err)
		}
		return c.JSON(toReply(res))
	}
}

// Enter is called when the user opens a private chat. It delivers pending
// group events or gathered intelligence and the agent's reaction.
func (a *App) Enter() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		briefing, res, err := a.engine.EnterChat(c.Context(), c.Params("id"))
		if err != nil {
			return engineError(c, err)
		}
		out := fiber.Map{"briefing": nil, "reply": toReply(res)}
		if briefing != nil {
			out["briefing"] = fiber.Map{
				"kind":   briefing.Kind,
				"events": len(briefing.Events),
				"hits":   len(briefing.Hits),
			}
		}
		return c.JSON(out)
	}
}

func (a *App) Block() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var payload struct {
			Reason string `json:"reason" form:"reason"`
		}
		if err := c.BodyParser(&payload); err != nil {
			return errorJSONMessage(c, fiber.StatusBadRequest, "Invalid request")
		}
		agent, err := a.engine.BlockAgent(c.Context(), c.Params("id"), strings.TrimSpace(payload.Reason))
		if err != nil {
			return engineError(c, err)
		}
		return c.JSON(agent.Block)
	}
}

func (a *App) Unblock() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		agent, err := a.engine.Unblock(c.Context(), c.Params("id"))
		if err != nil {
			return engineError(c, err)
		}
		return c.JSON(agent.Block)
	}
}

func (a *App) Approve() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var payload struct {
			Accept bool `json:"accept" form:"accept"`
		}
		if err := c.BodyParser(&payload); err != nil {
			return errorJSONMessage(c, fiber.StatusBadRequest, "Invalid request")
		}
		agent, err := a.engine.Approve(c.Context(), c.Params("id"), payload.Accept)
		if err != nil {
			return engineError(c, err)
		}
		return c.JSON(agent.Block)
	}
}

func (a *App) RequestFriend() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		message, ok := messagePayload(c)
		if !ok {
			return errorJSONMessage(c, fiber.StatusBadRequest, "Message cannot be empty")
		}
		res, err := a.engine.RequestFriend(c.Context(), c.Params("id"), message)
		if err != nil {
			return engineError(c, err)
		}
		return c.JSON(toReply(res))
	}
}

func (a *App) OpenGift() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		ts, err := strconv.ParseInt(c.Params("timestamp"), 10, 64)
		if err != nil {
			return errorJSONMessage(c, fiber.StatusBadRequest, "Invalid timestamp")
		}
		amount, err := a.engine.OpenGift(c.Context(), c.Params("scope"), ts)
		if err != nil {
			return engineError(c, err)
		}
		return c.JSON(fiber.Map{"amount": amount})
	}
}

// Resume runs the catch-up simulation for the time the user was away.
func (a *App) Resume() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		report, err := a.engine.Resume(c.Context())
		if err != nil {
			return engineError(c, err)
		}
		type groupResult struct {
			GroupID string   `json:"group_id"`
			Events  []string `json:"events"`
			Changes int      `json:"changes"`
			Error   string   `json:"error,omitempty"`
		}
		groups := make([]groupResult, 0, len(report.Groups))
		for _, g := range report.Groups {
			r := groupResult{GroupID: g.GroupID, Events: g.Events, Changes: len(g.Changes)}
			if g.Err != nil {
				r.Error = g.Err.Error()
			}
			groups = append(groups, r)
		}
		return c.JSON(fiber.Map{
			"ran":     report.Ran,
			"elapsed": report.Elapsed.String(),
			"groups":  groups,
		})
	}
}

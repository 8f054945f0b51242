package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/mudler/LocalCircle/core/gift"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	TransferName         = "transfer"
	RespondTransferName  = "respond_to_transfer"
	RedPacketName        = "red_packet"
	OpenRedPacketName    = "open_red_packet"
	DeliveryRequestName  = "waimai_request"
	DeliveryResponseName = "waimai_response"

	packetLucky  = "lucky"
	packetDirect = "direct"
)

type Transfer struct {
	Amount Number `json:"amount"`
	Note   string `json:"note"`
}

func (c *Transfer) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        TransferName,
		Description: "Transfer money to the user.",
		Properties: map[string]jsonschema.Definition{
			"amount": {Type: jsonschema.Number, Description: "Positive amount"},
			"note":   {Type: jsonschema.String, Description: "Note attached to the transfer"},
		},
		Required: []string{"amount"},
	}
}

func (c *Transfer) apply(_ context.Context, t *turn) error {
	if !c.Amount.Positive() {
		return skip("transfer amount must be positive")
	}
	t.say(types.Message{
		Type: types.MessageTransfer,
		Transfer: &types.Transfer{
			Amount: float64(c.Amount),
			Note:   c.Note,
			Status: types.TransferPending,
		},
	})
	return nil
}

type RespondTransfer struct {
	Target   Stamp  `json:"target_timestamp"`
	Decision string `json:"decision"`
}

func (c *RespondTransfer) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        RespondTransferName,
		Description: "Accept or decline a transfer the user sent.",
		Properties: map[string]jsonschema.Definition{
			"target_timestamp": {Type: jsonschema.Integer, Description: "Timestamp of the transfer message"},
			"decision":         {Type: jsonschema.String, Enum: []string{"accept", "decline"}},
		},
		Required: []string{"target_timestamp", "decision"},
	}
}

func (c *RespondTransfer) apply(_ context.Context, t *turn) error {
	var status types.TransferStatus
	switch c.Decision {
	case "accept":
		status = types.TransferAccepted
	case "decline":
		status = types.TransferDeclined
	default:
		return skip("unknown transfer decision %q", c.Decision)
	}

	msg := t.transcript().Find(int64(c.Target))
	if msg == nil || msg.Role != types.RoleUser || msg.Type != types.MessageTransfer || msg.Transfer == nil {
		return skip("no user transfer at %d", c.Target)
	}
	if msg.Transfer.Status != types.TransferPending && msg.Transfer.Status != "" {
		return skip("transfer at %d already %s", c.Target, msg.Transfer.Status)
	}
	msg.Transfer.Status = status
	t.notice(fmt.Sprintf("[%s %s the user's transfer of %.2f]", t.actor.Name, status, msg.Transfer.Amount), true)
	return nil
}

// RedPacket sends a pooled ("lucky") or targeted ("direct") gift.
type RedPacket struct {
	PacketType string `json:"packetType"`
	Amount     Number `json:"amount"`
	Count      Number `json:"count"`
	Greeting   string `json:"greeting"`
	Receiver   string `json:"receiverName"`
}

func (c *RedPacket) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        RedPacketName,
		Description: "Send a red packet. A lucky packet is split randomly among count claimants; a direct packet goes to receiverName only.",
		Properties: map[string]jsonschema.Definition{
			"packetType":   {Type: jsonschema.String, Enum: []string{packetLucky, packetDirect}},
			"amount":       {Type: jsonschema.Number, Description: "Total amount"},
			"count":        {Type: jsonschema.Integer, Description: "Number of slots of a lucky packet"},
			"greeting":     {Type: jsonschema.String},
			"receiverName": {Type: jsonschema.String, Description: "Recipient of a direct packet"},
		},
		Required: []string{"packetType", "amount"},
	}
}

func (c *RedPacket) apply(ctx context.Context, t *turn) error {
	if !c.Amount.Positive() {
		return skip("red packet amount must be positive")
	}

	var (
		g   *types.Gift
		typ types.MessageType
		err error
	)
	switch c.PacketType {
	case packetDirect:
		recipient, ok := t.resolve(ctx, c.Receiver)
		if !ok || c.Receiver == "" || recipient == t.actor.ID {
			return skip("unknown red packet receiver %q", c.Receiver)
		}
		g, err = gift.NewTargeted(float64(c.Amount), recipient, c.Greeting)
		typ = types.MessageTargetedGift
	case packetLucky, "":
		count := 1
		if c.Count.Valid() && c.Count >= 1 {
			count = int(c.Count)
		}
		g, err = gift.NewPooled(float64(c.Amount), count, c.Greeting)
		typ = types.MessagePooledGift
	default:
		return skip("unknown packet type %q", c.PacketType)
	}
	if err != nil {
		return skip("%v", err)
	}

	t.say(types.Message{Type: typ, Content: c.Greeting, Gift: g})
	return nil
}

type OpenRedPacket struct {
	Packet Stamp `json:"packet_timestamp"`
}

func (c *OpenRedPacket) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        OpenRedPacketName,
		Description: "Claim a red packet that is still open.",
		Properties: map[string]jsonschema.Definition{
			"packet_timestamp": {Type: jsonschema.Integer, Description: "Timestamp of the red packet message"},
		},
		Required: []string{"packet_timestamp"},
	}
}

func (c *OpenRedPacket) apply(ctx context.Context, t *turn) error {
	msg := t.transcript().Find(int64(c.Packet))
	if msg == nil || msg.Gift == nil {
		return skip("no red packet at %d", c.Packet)
	}
	amount, err := gift.Claim(msg.Gift, t.actor.ID, t.now, t.options.rng)
	switch {
	case errors.Is(err, gift.ErrAlreadyClaimed), errors.Is(err, gift.ErrFullyClaimed), errors.Is(err, gift.ErrNotRecipient):
		return skip("%v", err)
	case err != nil:
		return err
	}

	sender := msg.SenderName
	if sender == "" {
		sender = t.displayName(ctx, msg.Sender)
	}
	t.notice(fmt.Sprintf("[%s claimed %.2f from %s's red packet]", t.actor.Name, amount, sender), true)
	return nil
}

type DeliveryRequest struct {
	Item   string `json:"productInfo"`
	Amount Number `json:"amount"`
}

func (c *DeliveryRequest) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        DeliveryRequestName,
		Description: "Ask someone to pay for a food delivery order.",
		Properties: map[string]jsonschema.Definition{
			"productInfo": {Type: jsonschema.String, Description: "What is being ordered"},
			"amount":      {Type: jsonschema.Number, Description: "Price of the order"},
		},
		Required: []string{"productInfo", "amount"},
	}
}

func (c *DeliveryRequest) apply(_ context.Context, t *turn) error {
	if c.Item == "" {
		return skip("delivery request without product")
	}
	if !c.Amount.Positive() {
		return skip("delivery amount must be positive")
	}
	t.say(types.Message{
		Type: types.MessageDeliveryRequest,
		Delivery: &types.Delivery{
			Item:   c.Item,
			Amount: float64(c.Amount),
			Status: types.DeliveryPending,
		},
	})
	return nil
}

type DeliveryResponse struct {
	Target   Stamp  `json:"target_timestamp"`
	Decision string `json:"decision"`
}

func (c *DeliveryResponse) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        DeliveryResponseName,
		Description: "Pay for or reject a pending delivery request.",
		Properties: map[string]jsonschema.Definition{
			"target_timestamp": {Type: jsonschema.Integer, Description: "Timestamp of the delivery request"},
			"decision":         {Type: jsonschema.String, Enum: []string{string(types.DeliveryPaid), string(types.DeliveryRejected)}},
		},
		Required: []string{"target_timestamp", "decision"},
	}
}

func (c *DeliveryResponse) apply(ctx context.Context, t *turn) error {
	decision := types.DeliveryStatus(c.Decision)
	if decision != types.DeliveryPaid && decision != types.DeliveryRejected {
		return skip("unknown delivery decision %q", c.Decision)
	}
	msg := t.transcript().Find(int64(c.Target))
	if msg == nil || msg.Type != types.MessageDeliveryRequest || msg.Delivery == nil {
		return skip("no delivery request at %d", c.Target)
	}
	if msg.Delivery.Status != types.DeliveryPending {
		return skip("delivery request at %d already %s", c.Target, msg.Delivery.Status)
	}

	msg.Delivery.Status = decision
	if decision == types.DeliveryPaid {
		msg.Delivery.PaidBy = t.actor.ID
	}
	requester := msg.SenderName
	if requester == "" {
		requester = t.displayName(ctx, msg.Sender)
	}
	t.notice(fmt.Sprintf("[%s %s the delivery request from %s]", t.actor.Name, decision, requester), true)
	return nil
}

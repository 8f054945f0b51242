package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mudler/LocalCircle/core/types"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// ErrSkipped marks a command that was valid JSON but could not be applied
// to the current state. Nothing was mutated.
var ErrSkipped = errors.New("command skipped")

func skip(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSkipped, fmt.Sprintf(format, args...))
}

// Command is a member of the closed command catalog. Unknown or malformed
// entries decode to *Unsupported.
type Command interface {
	Definition() types.CommandDefinition
	apply(ctx context.Context, t *turn) error
}

var catalog = map[string]func() Command{
	TextName:                  func() Command { return &Text{} },
	PhotoName:                 func() Command { return &Photo{} },
	VoiceName:                 func() Command { return &Voice{} },
	LinkName:                  func() Command { return &Link{} },
	StickerName:               func() Command { return &Sticker{} },
	QuoteReplyName:            func() Command { return &QuoteReply{} },
	PatUserName:               func() Command { return &PatUser{} },
	PatMemberName:             func() Command { return &PatMember{} },
	TransferName:              func() Command { return &Transfer{} },
	RespondTransferName:       func() Command { return &RespondTransfer{} },
	RedPacketName:             func() Command { return &RedPacket{} },
	OpenRedPacketName:         func() Command { return &OpenRedPacket{} },
	DeliveryRequestName:       func() Command { return &DeliveryRequest{} },
	DeliveryResponseName:      func() Command { return &DeliveryResponse{} },
	UpdateStatusName:          func() Command { return &UpdateStatus{} },
	UpdateSignatureName:       func() Command { return &UpdateSignature{} },
	ChangeAvatarName:          func() Command { return &ChangeAvatar{} },
	UpdateNameName:            func() Command { return &UpdateName{} },
	BlockUserName:             func() Command { return &BlockUser{} },
	FriendRequestResponseName: func() Command { return &FriendRequestResponse{} },
	CreatePostName:            func() Command { return &CreatePost{} },
	LikePostName:              func() Command { return &LikePost{} },
	CommentPostName:           func() Command { return &CommentPost{} },
	MemoryName:                func() Command { return &Memory{} },
	ImportantMemoryName:       func() Command { return &Memory{Important: true} },
	CountdownName:             func() Command { return &Countdown{} },
	AdjustRelationshipName:    func() Command { return &AdjustRelationship{} },
}

// Catalog returns the definition of every known command, sorted by name.
func Catalog() types.CommandDefinitions {
	defs := make(types.CommandDefinitions, 0, len(catalog))
	for _, ctor := range catalog {
		defs = append(defs, ctor().Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// DecodeCommand turns one JSON command object into a Command.
func DecodeCommand(raw json.RawMessage) Command {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return &Unsupported{Raw: string(raw), Reason: "not a command object"}
	}
	ctor, ok := catalog[head.Type]
	if !ok {
		return &Unsupported{Kind: head.Type, Raw: string(raw), Reason: "unknown command"}
	}
	cmd := ctor()
	if err := json.Unmarshal(raw, cmd); err != nil {
		return &Unsupported{Kind: head.Type, Raw: string(raw), Reason: err.Error()}
	}
	return cmd
}

// UnsupportedName is never part of the catalog.
const UnsupportedName = "unsupported"

// Unsupported stands in for unknown or malformed commands. Applying it
// writes a visible diagnostic into the transcript.
type Unsupported struct {
	Kind   string
	Raw    string
	Reason string
}

func (u *Unsupported) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        UnsupportedName,
		Description: "Placeholder for commands that could not be recognized.",
		Properties:  map[string]jsonschema.Definition{},
	}
}

func (u *Unsupported) apply(_ context.Context, t *turn) error {
	kind := u.Kind
	if kind == "" {
		kind = "?"
	}
	t.notice(fmt.Sprintf("[unrecognized command: %s] %s", kind, u.Raw), false)
	return nil
}

package types

// UserID is the relationship endpoint that represents the human user.
const UserID = "user"

type BlockState string

const (
	BlockNone            BlockState = "none"
	BlockedByUser        BlockState = "blocked_by_user"
	BlockedByAgent       BlockState = "blocked_by_agent"
	PendingUserApproval  BlockState = "pending_user_approval"
	PendingAgentApproval BlockState = "pending_agent_approval"
	PendingReflection    BlockState = "pending_reflection"
)

const (
	defaultStatusColor = "green"
	defaultStatusText  = "online"
)

// BlockStatus is the social state between the user and an agent.
// Timestamp is the moment the state was entered, in milliseconds.
type BlockStatus struct {
	State     BlockState `json:"state"`
	Timestamp int64      `json:"timestamp,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Is reports whether the status is in the given state. The zero value is BlockNone.
func (b BlockStatus) Is(s BlockState) bool {
	if b.State == "" {
		return s == BlockNone
	}
	return b.State == s
}

type Status struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

func DefaultStatus() Status {
	return Status{Text: defaultStatusText, Color: defaultStatusColor}
}

type Avatar struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Agent is a simulated character.
type Agent struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Persona         string      `json:"persona"`
	Avatar          string      `json:"avatar,omitempty"`
	Signature       string      `json:"signature,omitempty"`
	GroupID         string      `json:"group_id,omitempty"`
	Status          Status      `json:"status"`
	Block           BlockStatus `json:"block"`
	History         Transcript  `json:"history"`
	AvatarLibrary   []Avatar    `json:"avatar_library,omitempty"`
	LastIntelUpdate int64       `json:"last_intel_update,omitempty"`
	CreatedAt       int64       `json:"created_at"`
}

// Awake reports whether the agent can be woken by the background scheduler.
func (a *Agent) Awake() bool {
	return a.Block.Is(BlockNone)
}

func (a *Agent) FindAvatar(name string) (Avatar, bool) {
	for _, av := range a.AvatarLibrary {
		if av.Name == name {
			return av, true
		}
	}
	return Avatar{}, false
}

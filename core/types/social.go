package types

import "sort"

type RelationType string

const (
	RelationStranger RelationType = "stranger"
	RelationFriend   RelationType = "friend"
	RelationFamily   RelationType = "family"
	RelationLover    RelationType = "lover"
	RelationRival    RelationType = "rival"
)

func (r RelationType) Valid() bool {
	switch r {
	case RelationStranger, RelationFriend, RelationFamily, RelationLover, RelationRival:
		return true
	}
	return false
}

// Relationship is the single shared record between two endpoints.
// A is always the lexically smaller identifier.
type Relationship struct {
	Key   string       `json:"key"`
	A     string       `json:"a"`
	B     string       `json:"b"`
	Type  RelationType `json:"type"`
	Score int          `json:"score"`
}

// Involves reports whether id is one of the endpoints.
func (r *Relationship) Involves(id string) bool {
	return r.A == id || r.B == id
}

// Other returns the endpoint that is not id.
func (r *Relationship) Other(id string) string {
	if r.A == id {
		return r.B
	}
	return r.A
}

// RelationKey canonicalizes an unordered pair.
func RelationKey(x, y string) (a, b, key string) {
	pair := []string{x, y}
	sort.Strings(pair)
	return pair[0], pair[1], pair[0] + "|" + pair[1]
}

type GiftKind string

const (
	GiftPooled   GiftKind = "pooled"
	GiftTargeted GiftKind = "targeted"
)

type Claim struct {
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
}

// Gift is a red packet. FullyClaimed flips when len(Claims) reaches Count.
type Gift struct {
	Kind         GiftKind         `json:"kind"`
	Total        float64          `json:"total"`
	Count        int              `json:"count"`
	Recipient    string           `json:"recipient,omitempty"`
	Greeting     string           `json:"greeting,omitempty"`
	Claims       map[string]Claim `json:"claims"`
	FullyClaimed bool             `json:"fully_claimed"`
}

type Group struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	LoreIDs []string   `json:"lore_ids,omitempty"`
	History Transcript `json:"history"`
}

// Event is a group-scoped fact delivered at most once per agent.
type Event struct {
	ID          string   `json:"id"`
	GroupID     string   `json:"group_id"`
	Kind        string   `json:"kind"`
	Summary     string   `json:"summary"`
	Timestamp   int64    `json:"timestamp"`
	ProcessedBy []string `json:"processed_by"`
}

func (e *Event) ProcessedByAgent(id string) bool {
	for _, p := range e.ProcessedBy {
		if p == id {
			return true
		}
	}
	return false
}

type PostKind string

const (
	PostText  PostKind = "text"
	PostImage PostKind = "image"
)

type Comment struct {
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type Post struct {
	ID               string    `json:"id"`
	AuthorID         string    `json:"author_id"`
	Kind             PostKind  `json:"kind"`
	Text             string    `json:"text,omitempty"`
	ImageDescription string    `json:"image_description,omitempty"`
	Timestamp        int64     `json:"timestamp"`
	Likes            []string  `json:"likes"`
	Comments         []Comment `json:"comments"`
}

type MemoryKind string

const (
	MemoryDiary     MemoryKind = "diary"
	MemoryCountdown MemoryKind = "countdown"
	MemoryMilestone MemoryKind = "milestone"
)

type Memory struct {
	ID          string     `json:"id"`
	AgentID     string     `json:"agent_id"`
	Author      string     `json:"author"`
	Kind        MemoryKind `json:"kind"`
	Description string     `json:"description"`
	Important   bool       `json:"important,omitempty"`
	TargetDate  int64      `json:"target_date,omitempty"`
	Timestamp   int64      `json:"timestamp"`
}

// Summary is the latest offline catch-up digest of a group.
type Summary struct {
	ID        string   `json:"id"`
	GroupID   string   `json:"group_id"`
	GroupName string   `json:"group_name"`
	Events    []string `json:"events"`
	Timestamp int64    `json:"timestamp"`
}

const LoreChronicle = "chronicle"

type LoreDoc struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind,omitempty"`
	Content string `json:"content"`
}

type Sticker struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Settings struct {
	LastOnline int64  `json:"last_online"`
	UserName   string `json:"user_name,omitempty"`
}

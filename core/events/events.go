// Package events keeps the group event log and builds the briefings an agent
// receives when the user opens its chat.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/LocalCircle/pkg/xstrings"
	"github.com/mudler/xlog"
)

type Repository interface {
	SaveEvent(ctx context.Context, e *types.Event) error
	Events(ctx context.Context, groupID string) ([]*types.Event, error)
	SaveAgent(ctx context.Context, a *types.Agent) error
	Members(ctx context.Context, groupID string) ([]*types.Agent, error)
	Relationship(ctx context.Context, key string) (*types.Relationship, error)
	Settings(ctx context.Context) (types.Settings, error)
}

type BriefingKind string

const (
	EventBriefing BriefingKind = "events"
	IntelBriefing BriefingKind = "intel"
)

// Hit is one mention of the agent found in a peer's private chat.
type Hit struct {
	Peer    string
	Speaker string
	Snippet string
}

// Briefing is what an agent learned on entering its chat. Message is the
// hidden system message that was appended to the agent transcript.
type Briefing struct {
	Kind    BriefingKind
	Events  []*types.Event
	Hits    []Hit
	Message types.Message
}

type Option func(*options) error

type options struct {
	clock             func() time.Time
	notifier          types.Notifier
	cooldown          time.Duration
	affinityThreshold int
	scanRange         int
	maxHits           int
	snippetRadius     int
	maxHistory        int
}

func defaultOptions() *options {
	return &options{
		clock:             time.Now,
		notifier:          types.NopNotifier{},
		cooldown:          5 * time.Minute,
		affinityThreshold: 40,
		scanRange:         50,
		maxHits:           5,
		snippetRadius:     30,
		maxHistory:        500,
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) error {
		o.clock = clock
		return nil
	}
}

func WithNotifier(n types.Notifier) Option {
	return func(o *options) error {
		o.notifier = n
		return nil
	}
}

func WithCooldown(d time.Duration) Option {
	return func(o *options) error {
		o.cooldown = d
		return nil
	}
}

func WithAffinityThreshold(score int) Option {
	return func(o *options) error {
		o.affinityThreshold = score
		return nil
	}
}

// WithScan sets how many recent peer messages are scanned, the maximum
// number of hits reported and the snippet radius in runes.
func WithScan(scanRange, maxHits, snippetRadius int) Option {
	return func(o *options) error {
		if scanRange <= 0 || maxHits <= 0 || snippetRadius < 0 {
			return fmt.Errorf("invalid intel scan settings %d/%d/%d", scanRange, maxHits, snippetRadius)
		}
		o.scanRange, o.maxHits, o.snippetRadius = scanRange, maxHits, snippetRadius
		return nil
	}
}

func WithMaxHistory(n int) Option {
	return func(o *options) error {
		o.maxHistory = n
		return nil
	}
}

type Log struct {
	mu      sync.Mutex
	repo    Repository
	options *options
}

func New(repo Repository, opts ...Option) (*Log, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return &Log{repo: repo, options: o}, nil
}

// Append records a new event with an empty delivery set.
func (l *Log) Append(ctx context.Context, groupID, kind, summary string) (*types.Event, error) {
	if groupID == "" {
		return nil, errors.New("events: empty group id")
	}
	evt := &types.Event{
		ID:          uuid.New().String(),
		GroupID:     groupID,
		Kind:        kind,
		Summary:     summary,
		Timestamp:   l.options.clock().UnixMilli(),
		ProcessedBy: []string{},
	}
	if err := l.repo.SaveEvent(ctx, evt); err != nil {
		return nil, fmt.Errorf("saving event: %w", err)
	}
	l.options.notifier.EventAppended(*evt)
	xlog.Debug("Event appended", "group", groupID, "kind", kind, "id", evt.ID)
	return evt, nil
}

// Pending returns the events of the agent's group it has not processed yet.
func (l *Log) Pending(ctx context.Context, agent *types.Agent) ([]*types.Event, error) {
	if agent.GroupID == "" {
		return nil, nil
	}
	all, err := l.repo.Events(ctx, agent.GroupID)
	if err != nil {
		return nil, err
	}
	var pending []*types.Event
	for _, e := range all {
		if !e.ProcessedByAgent(agent.ID) {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// Enter runs when the user opens the private chat of agent. Undelivered
// group events are combined into one hidden briefing and marked processed;
// when there are none and the intel cooldown elapsed, peers' chats are
// scanned for mentions instead. The agent is updated in place and saved.
// A nil briefing means there was nothing to tell.
func (l *Log) Enter(ctx context.Context, agent *types.Agent) (*Briefing, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.options.clock()
	pending, err := l.Pending(ctx, agent)
	if err != nil {
		return nil, err
	}

	if len(pending) > 0 {
		// Delivery is marked before the briefing is stored so an event is
		// never briefed twice.
		for _, e := range pending {
			e.ProcessedBy, _ = xstrings.AppendUnique(e.ProcessedBy, agent.ID)
			if err := l.repo.SaveEvent(ctx, e); err != nil {
				return nil, fmt.Errorf("marking event %s: %w", e.ID, err)
			}
		}
		b := &Briefing{Kind: EventBriefing, Events: pending}
		b.Message = l.deliver(agent, eventText(pending), now)
		if err := l.repo.SaveAgent(ctx, agent); err != nil {
			return nil, err
		}
		xlog.Info("Event briefing delivered", "agent", agent.ID, "events", len(pending))
		return b, nil
	}

	if now.Sub(time.UnixMilli(agent.LastIntelUpdate)) < l.options.cooldown {
		return nil, nil
	}

	hits, err := l.Gather(ctx, agent)
	if err != nil {
		return nil, err
	}
	var b *Briefing
	if len(hits) > 0 {
		b = &Briefing{Kind: IntelBriefing, Hits: hits}
		b.Message = l.deliver(agent, intelText(hits), now)
		xlog.Info("Intel briefing delivered", "agent", agent.ID, "hits", len(hits))
	}
	agent.LastIntelUpdate = now.UnixMilli()
	if err := l.repo.SaveAgent(ctx, agent); err != nil {
		return nil, err
	}
	return b, nil
}

func (l *Log) deliver(agent *types.Agent, text string, now time.Time) types.Message {
	var msg types.Message
	agent.History, msg = agent.History.Append(types.Message{
		Role:    types.RoleSystem,
		Type:    types.MessageNotice,
		Content: text,
		Hidden:  true,
	}, now.UnixMilli(), l.options.maxHistory)
	agent.LastIntelUpdate = now.UnixMilli()
	return msg
}

// Gather scans the recent private chats of same-group peers the agent likes
// for messages that mention it.
func (l *Log) Gather(ctx context.Context, agent *types.Agent) ([]Hit, error) {
	if agent.GroupID == "" {
		return nil, nil
	}
	peers, err := l.repo.Members(ctx, agent.GroupID)
	if err != nil {
		return nil, err
	}
	settings, err := l.repo.Settings(ctx)
	if err != nil {
		return nil, err
	}
	userName := settings.UserName
	if userName == "" {
		userName = "User"
	}

	var hits []Hit
	for _, peer := range peers {
		if peer.ID == agent.ID {
			continue
		}
		_, _, key := types.RelationKey(agent.ID, peer.ID)
		rel, err := l.repo.Relationship(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rel.Score <= l.options.affinityThreshold {
			continue
		}

		for _, msg := range peer.History.Tail(l.options.scanRange) {
			if msg.Hidden || !strings.Contains(msg.Content, agent.Name) {
				continue
			}
			speaker := peer.Name
			if msg.Role == types.RoleUser {
				speaker = userName
			}
			hits = append(hits, Hit{
				Peer:    peer.Name,
				Speaker: speaker,
				Snippet: xstrings.Snippet(msg.Content, agent.Name, l.options.snippetRadius),
			})
			if len(hits) >= l.options.maxHits {
				return hits, nil
			}
		}
	}
	return hits, nil
}

func eventText(evts []*types.Event) string {
	var sb strings.Builder
	sb.WriteString("[While you were away, this happened in your circle:\n")
	for _, e := range evts {
		fmt.Fprintf(&sb, "- %s\n", e.Summary)
	}
	sb.WriteString("Bring it up naturally with the user: share the gossip, show you care or change your mind about something.]")
	return sb.String()
}

func intelText(hits []Hit) string {
	var sb strings.Builder
	sb.WriteString("[You recently heard a few things about yourself. Digest them before talking to the user:\n")
	for _, h := range hits {
		fmt.Fprintf(&sb, "- %s mentioned you while chatting with %s: %q\n", h.Speaker, h.Peer, h.Snippet)
	}
	sb.WriteString("]")
	return sb.String()
}

package action

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/mudler/LocalCircle/core/gift"
	"github.com/mudler/LocalCircle/core/relation"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/xlog"
)

// Repository is the storage the interpreter reads and writes.
type Repository interface {
	relation.Store
	Agent(ctx context.Context, id string) (*types.Agent, error)
	SaveAgent(ctx context.Context, a *types.Agent) error
	Group(ctx context.Context, id string) (*types.Group, error)
	SaveGroup(ctx context.Context, g *types.Group) error
	Members(ctx context.Context, groupID string) ([]*types.Agent, error)
	Post(ctx context.Context, id string) (*types.Post, error)
	SavePost(ctx context.Context, p *types.Post) error
	SaveMemory(ctx context.Context, m *types.Memory) error
	Stickers(ctx context.Context) ([]*types.Sticker, error)
	Settings(ctx context.Context) (types.Settings, error)
}

// Scope is where a plan runs. Actor is the agent issuing the commands.
// Group is set for group transcripts; otherwise the actor's private
// transcript with the user is used. Only the ids are used to load the
// records; both are overwritten with the stored versions after every
// successfully applied command.
type Scope struct {
	Actor *types.Agent
	Group *types.Group
}

func (s Scope) ID() string {
	if s.Group != nil {
		return s.Group.ID
	}
	return s.Actor.ID
}

type Result struct {
	Applied     int
	Skipped     int
	Adjustments int
	Messages    []types.Message
}

type Option func(*options) error

type options struct {
	pacer      Pacer
	notifier   types.Notifier
	clock      func() time.Time
	rng        gift.Rand
	records    sync.Locker
	maxHistory int
}

func defaultOptions() *options {
	return &options{
		pacer:      NoPacing,
		notifier:   types.NopNotifier{},
		clock:      time.Now,
		rng:        NewRand(),
		records:    &sync.Mutex{},
		maxHistory: 500,
	}
}

func newOptions(opts ...Option) (*options, error) {
	options := defaultOptions()
	for _, o := range opts {
		if err := o(options); err != nil {
			return nil, err
		}
	}
	return options, nil
}

func WithPacer(p Pacer) Option {
	return func(o *options) error {
		o.pacer = p
		return nil
	}
}

func WithNotifier(n types.Notifier) Option {
	return func(o *options) error {
		o.notifier = n
		return nil
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) error {
		o.clock = clock
		return nil
	}
}

// WithRand sets the source for pooled red packet draws. It must be safe
// for concurrent use if the interpreter is shared.
func WithRand(r gift.Rand) Option {
	return func(o *options) error {
		o.rng = r
		return nil
	}
}

// WithRecordLock shares the lock held around every agent and group
// read-modify-write with other writers of the same records.
func WithRecordLock(l sync.Locker) Option {
	return func(o *options) error {
		o.records = l
		return nil
	}
}

func WithMaxHistory(n int) Option {
	return func(o *options) error {
		o.maxHistory = n
		return nil
	}
}

// NewRand returns a time-seeded gift.Rand that is safe for concurrent use.
func NewRand() gift.Rand {
	return &lockedRand{r: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// Interpreter applies plans to conversational and social state.
type Interpreter struct {
	repo      Repository
	relations *relation.Adjuster
	options   *options
}

func New(repo Repository, relations *relation.Adjuster, opts ...Option) (*Interpreter, error) {
	options, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	return &Interpreter{repo: repo, relations: relations, options: options}, nil
}

// Apply runs the plan commands in order, then its relationship deltas.
// Each command either commits fully or is skipped with a warning; earlier
// commands stay applied when a later one fails. Only context cancellation
// stops the run early.
func (i *Interpreter) Apply(ctx context.Context, scope Scope, plan *Plan) (*Result, error) {
	res := &Result{}
	if plan == nil {
		return res, nil
	}

	for n, cmd := range plan.Commands {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if n > 0 {
			if err := i.options.pacer.Pause(ctx); err != nil {
				return res, err
			}
		}

		name := cmd.Definition().Name
		t, applyErr, err := i.step(ctx, scope, cmd)
		if err != nil {
			return res, err
		}
		if applyErr != nil {
			res.Skipped++
			xlog.Warn("Command skipped", "command", name, "actor", scope.Actor.ID, "scope", scope.ID(), "error", applyErr)
			continue
		}
		res.Applied++
		res.Messages = append(res.Messages, t.appended...)
		xlog.Debug("Command applied", "command", name, "actor", scope.Actor.ID, "scope", scope.ID())
	}

	if len(plan.Adjustments) > 0 {
		t, err := i.newTurn(ctx, scope)
		if err != nil {
			return res, err
		}
		for _, adj := range plan.Adjustments {
			if err := t.adjust(ctx, adj.Source, adj.Target, adj.Delta); err != nil {
				xlog.Warn("Relationship adjustment skipped", "source", adj.Source, "target", adj.Target, "error", err)
				continue
			}
			res.Adjustments++
		}
	}
	return res, nil
}

// step applies one command to freshly loaded records and persists them.
// applyErr is a skipped command; err aborts the plan.
func (i *Interpreter) step(ctx context.Context, scope Scope, cmd Command) (t *turn, applyErr, err error) {
	i.options.records.Lock()
	defer i.options.records.Unlock()

	t, err = i.newTurn(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.apply(ctx, t); err != nil {
		return t, err, nil
	}
	if err := i.commit(ctx, scope, t); err != nil {
		return t, fmt.Errorf("persisting: %w", err), nil
	}
	return t, nil, nil
}

func (i *Interpreter) newTurn(ctx context.Context, scope Scope) (*turn, error) {
	if scope.Actor == nil {
		return nil, errors.New("interpreter: scope without actor")
	}
	actor, err := i.repo.Agent(ctx, scope.Actor.ID)
	if err != nil {
		return nil, fmt.Errorf("loading agent %s: %w", scope.Actor.ID, err)
	}
	var group *types.Group
	if scope.Group != nil {
		if group, err = i.repo.Group(ctx, scope.Group.ID); err != nil {
			return nil, fmt.Errorf("loading group %s: %w", scope.Group.ID, err)
		}
	}
	settings, err := i.repo.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return &turn{
		Interpreter: i,
		actor:       actor,
		group:       group,
		now:         i.options.clock().UnixMilli(),
		userName:    settings.UserName,
	}, nil
}

// commit persists the working copies and publishes them back to scope.
func (i *Interpreter) commit(ctx context.Context, scope Scope, t *turn) error {
	if t.group != nil {
		if err := i.repo.SaveGroup(ctx, t.group); err != nil {
			return err
		}
	}
	if err := i.repo.SaveAgent(ctx, t.actor); err != nil {
		return err
	}

	*scope.Actor = *t.actor
	if scope.Group != nil {
		*scope.Group = *t.group
	}
	for _, m := range t.appended {
		if !m.Hidden {
			i.options.notifier.MessageAppended(scope.ID(), m)
		}
	}
	return nil
}

// turn is the working state of one command.
type turn struct {
	*Interpreter
	actor    *types.Agent
	group    *types.Group
	now      int64
	userName string
	appended []types.Message
}

func (t *turn) transcript() *types.Transcript {
	if t.group != nil {
		return &t.group.History
	}
	return &t.actor.History
}

func (t *turn) inGroup() bool {
	return t.group != nil
}

func (t *turn) append(msg types.Message) types.Message {
	tr := t.transcript()
	var stamped types.Message
	*tr, stamped = tr.Append(msg, t.now, t.options.maxHistory)
	t.appended = append(t.appended, stamped)
	return stamped
}

// say appends a message authored by the actor.
func (t *turn) say(msg types.Message) types.Message {
	msg.Role = types.RoleAgent
	msg.Sender = t.actor.ID
	msg.SenderName = t.actor.Name
	if msg.Type == "" {
		msg.Type = types.MessageText
	}
	return t.append(msg)
}

// notice appends a system line. Hidden notices feed the model only.
func (t *turn) notice(content string, hidden bool) types.Message {
	return t.append(types.Message{
		Role:    types.RoleSystem,
		Type:    types.MessageNotice,
		Content: content,
		Hidden:  hidden,
	})
}

// resolve maps a display name used by the model to an endpoint id.
func (t *turn) resolve(ctx context.Context, name string) (string, bool) {
	name = strings.TrimSpace(name)
	switch {
	case name == "" || strings.EqualFold(name, "self") || strings.EqualFold(name, "me") || name == t.actor.Name || name == t.actor.ID:
		return t.actor.ID, true
	case strings.EqualFold(name, types.UserID) || (t.userName != "" && name == t.userName):
		return types.UserID, true
	}

	groupID := t.actor.GroupID
	if t.group != nil {
		groupID = t.group.ID
	}
	if groupID == "" {
		return "", false
	}
	members, err := t.repo.Members(ctx, groupID)
	if err != nil {
		xlog.Warn("Could not list group members", "group", groupID, "error", err)
		return "", false
	}
	for _, m := range members {
		if m.Name == name || m.ID == name {
			return m.ID, true
		}
	}
	return "", false
}

func (t *turn) displayName(ctx context.Context, id string) string {
	switch id {
	case t.actor.ID:
		return t.actor.Name
	case types.UserID:
		if t.userName != "" {
			return t.userName
		}
		return "User"
	}
	if a, err := t.repo.Agent(ctx, id); err == nil {
		return a.Name
	}
	return id
}

func (t *turn) adjust(ctx context.Context, source, target string, delta Number) error {
	return t.adjustAs(ctx, source, target, delta, "")
}

// adjustAs resolves and validates everything before writing, so the score
// and the kind change together or not at all.
func (t *turn) adjustAs(ctx context.Context, source, target string, delta Number, kind types.RelationType) error {
	if !delta.Valid() {
		return skip("invalid score change")
	}
	if kind != "" && !kind.Valid() {
		return skip("unknown relation type %q", kind)
	}
	from, ok := t.resolve(ctx, source)
	if !ok {
		return skip("unknown participant %q", source)
	}
	to, ok := t.resolve(ctx, target)
	if !ok {
		return skip("unknown participant %q", target)
	}
	var err error
	if kind == "" {
		_, err = t.relations.Adjust(ctx, from, to, delta.Score())
	} else {
		_, err = t.relations.AdjustAs(ctx, from, to, delta.Score(), kind)
	}
	return err
}

// Package sse pushes engine notifications to browsers as server-sent events.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/xlog"
	"github.com/valyala/fasthttp"
)

const (
	EventMessage = "message"
	EventEvent   = "event"

	clientBuffer = 50
	keepAlive    = 15 * time.Second
)

// Envelope is one server-sent event. Data is encoded as JSON.
type Envelope struct {
	Event string
	Data  any
}

func (e Envelope) String() string {
	data, err := json.Marshal(e.Data)
	if err != nil {
		data = []byte(fmt.Sprintf("%q", err.Error()))
	}
	sb := strings.Builder{}
	if e.Event != "" {
		sb.WriteString(fmt.Sprintf("event: %s\n", e.Event))
	}
	sb.WriteString(fmt.Sprintf("data: %s\n\n", data))
	return sb.String()
}

// MessagePayload is the data of a message event.
type MessagePayload struct {
	Scope   string        `json:"scope"`
	Message types.Message `json:"message"`
}

type Client struct {
	id string
	ch chan Envelope
}

func (c *Client) ID() string            { return c.id }
func (c *Client) Chan() <-chan Envelope { return c.ch }

// Broadcaster fans envelopes out to connected clients and keeps a short
// history for late joiners. Slow clients lose envelopes instead of
// blocking the engine. It implements types.Notifier.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]*Client
	history []Envelope
	maxSize int
}

func NewBroadcaster(historySize int) *Broadcaster {
	return &Broadcaster{
		clients: map[string]*Client{},
		maxSize: historySize,
	}
}

func (b *Broadcaster) MessageAppended(scope string, msg types.Message) {
	b.Send(Envelope{Event: EventMessage, Data: MessagePayload{Scope: scope, Message: msg}})
}

func (b *Broadcaster) EventAppended(evt types.Event) {
	b.Send(Envelope{Event: EventEvent, Data: evt})
}

func (b *Broadcaster) Send(e Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(b.history, e)
	if len(b.history) > b.maxSize {
		b.history = b.history[len(b.history)-b.maxSize:]
	}
	for _, c := range b.clients {
		select {
		case c.ch <- e:
		default:
			xlog.Debug("SSE client too slow, dropping envelope", "client", c.id)
		}
	}
}

// Subscribe registers a client and queues the history for it. An existing
// client with the same id is replaced.
func (b *Broadcaster) Subscribe(id string) *Client {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.clients[id]; ok {
		close(old.ch)
	}
	c := &Client{id: id, ch: make(chan Envelope, clientBuffer+b.maxSize)}
	for _, e := range b.history {
		c.ch <- e
	}
	b.clients[id] = c
	return c
}

func (b *Broadcaster) Unsubscribe(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.clients[c.id]; ok && cur == c {
		delete(b.clients, c.id)
		close(c.ch)
	}
}

// Clients lists connected client ids
func (b *Broadcaster) Clients() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.clients))
	for id := range b.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Handle streams envelopes to the client until it disconnects.
func (b *Broadcaster) Handle(c *fiber.Ctx, id string) error {
	cl := b.Subscribe(id)
	ctx := c.Context()

	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	ctx.Response.Header.Set("X-Accel-Buffering", "no")

	ctx.SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer b.Unsubscribe(cl)

		fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-cl.ch:
				if !ok {
					return
				}
				if _, err := fmt.Fprint(w, msg.String()); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

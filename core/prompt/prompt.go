// Package prompt renders the system prompts sent to the model and turns
// transcripts into model messages.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/LocalCircle/pkg/llm"
)

var (
	chatTmpl      = mustTemplate("chat", chatTemplate)
	groupTmpl     = mustTemplate("group", groupTemplate)
	catchUpTmpl   = mustTemplate("catchup", catchUpTemplate)
	reconcileTmpl = mustTemplate("reconcile", reconcileTemplate)
)

func templateBase(templateName, templatetext string) (*template.Template, error) {
	return template.New(templateName).Funcs(sprig.FuncMap()).Parse(templatetext)
}

func mustTemplate(name, text string) *template.Template {
	t, err := templateBase(name, text)
	if err != nil {
		panic(fmt.Sprintf("parsing %s template: %v", name, err))
	}
	return t
}

func templateExecute(template *template.Template, data interface{}) (string, error) {
	prompt := bytes.NewBuffer([]byte{})
	err := template.Execute(prompt, data)
	if err != nil {
		return "", err
	}
	return prompt.String(), nil
}

// Member is a character as other characters know it.
type Member struct {
	Name    string
	Persona string
}

// Relation is a relationship rendered with display names.
type Relation struct {
	A, B  string
	Type  types.RelationType
	Score int
}

// Chat is the data of a private conversation turn, either a reply to the
// user or an autonomous wake.
type Chat struct {
	Agent      *types.Agent
	UserName   string
	Autonomous bool
	Commands   types.CommandDefinitions
	Memories   []*types.Memory
	Relations  []Relation
	Posts      []*types.Post
	Lore       []*types.LoreDoc
	Stickers   []*types.Sticker
	Now        time.Time
}

func RenderChat(d Chat) (string, error) {
	return templateExecute(chatTmpl, d)
}

// Group is the data of a group conversation turn with Actor speaking.
type Group struct {
	Group      *types.Group
	Actor      *types.Agent
	Members    []Member
	UserName   string
	Autonomous bool
	Commands   types.CommandDefinitions
	Relations  []Relation
	Lore       []*types.LoreDoc
	Stickers   []*types.Sticker
	Now        time.Time
}

func RenderGroup(d Group) (string, error) {
	return templateExecute(groupTmpl, d)
}

type CatchUp struct {
	GroupName string
	Hours     float64
	Members   []Member
	Relations []Relation
	MaxEvents int
}

func RenderCatchUp(d CatchUp) (string, error) {
	return templateExecute(catchUpTmpl, d)
}

type Reconcile struct {
	Agent    *types.Agent
	UserName string
	Reason   string
}

func RenderReconcile(d Reconcile) (string, error) {
	return templateExecute(reconcileTmpl, d)
}

// Messages converts the last n entries of a transcript into model messages.
// Hidden messages are included; they are the agent's private context.
// Group transcripts prefix each line with its speaker.
func Messages(t types.Transcript, n int, self string, group bool) []llm.Message {
	tail := t.Tail(n)
	out := make([]llm.Message, 0, len(tail))
	for _, m := range tail {
		content := fmt.Sprintf("(%d) %s", m.Timestamp, m.Summary())
		if m.Quote != nil {
			content = fmt.Sprintf("(%d) [replying to %s: %s] %s", m.Timestamp, m.Quote.Sender, m.Quote.Content, m.Summary())
		}
		if m.Transfer != nil {
			content += fmt.Sprintf(" [amount %.2f, %s]", m.Transfer.Amount, m.Transfer.Status)
		}
		if m.Gift != nil {
			content += fmt.Sprintf(" [%s red packet, %.2f for %d, %d claimed]", m.Gift.Kind, m.Gift.Total, m.Gift.Count, len(m.Gift.Claims))
		}
		if m.Delivery != nil {
			content += fmt.Sprintf(" [%s, %.2f, %s]", m.Delivery.Item, m.Delivery.Amount, m.Delivery.Status)
		}

		role := llm.RoleUser
		switch {
		case m.Role == types.RoleSystem:
			role = llm.RoleSystem
		case m.Role == types.RoleAgent && m.Sender == self:
			role = llm.RoleAssistant
		}
		if group && m.Role != types.RoleSystem && m.SenderName != "" {
			content = m.SenderName + ": " + content
		}
		out = append(out, llm.Message{Role: role, Content: content})
	}
	return out
}

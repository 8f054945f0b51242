package action

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/mudler/LocalCircle/core/parser"
	"github.com/mudler/LocalCircle/core/relation"
	"github.com/mudler/xlog"
)

// Plan is what one model reply asks for: an ordered command list and a set
// of relationship deltas. An empty plan means the agent stays silent.
type Plan struct {
	Commands    []Command
	Adjustments []Adjustment
}

// Adjustment is a relationship delta expressed with display names.
type Adjustment struct {
	Source string `json:"source_char_name"`
	Target string `json:"target_char_name"`
	Delta  Number `json:"score_change"`
	Reason string `json:"reason,omitempty"`
}

type envelope struct {
	Response    json.RawMessage `json:"response"`
	Actions     json.RawMessage `json:"actions"`
	Adjustments json.RawMessage `json:"relationship_adjustments"`
	Adjustment  json.RawMessage `json:"relationship_adjustment"`
	Type        string          `json:"type"`
}

// ParsePlan recovers a Plan from raw model output. It returns a
// *parser.ParseFailure when no JSON could be recovered; individual
// malformed commands become *Unsupported entries instead.
func ParsePlan(raw string) (*Plan, error) {
	data, err := parser.Extract(raw)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	if data[0] == '[' {
		plan.Commands = decodeCommands(data)
		return plan, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &parser.ParseFailure{Raw: raw, Reason: "reply is not an object", Err: err}
	}

	switch {
	case len(env.Response) > 0 || len(env.Actions) > 0:
		plan.Commands = append(decodeCommands(env.Response), decodeCommands(env.Actions)...)
	case env.Type != "":
		plan.Commands = []Command{DecodeCommand(data)}
	}

	adjustments := env.Adjustments
	if len(adjustments) == 0 {
		adjustments = env.Adjustment
	}
	for _, item := range splitItems(adjustments) {
		var adj Adjustment
		if err := json.Unmarshal(item, &adj); err != nil {
			xlog.Warn("Dropping malformed relationship adjustment", "raw", string(item), "error", err)
			continue
		}
		plan.Adjustments = append(plan.Adjustments, adj)
	}
	return plan, nil
}

func decodeCommands(data json.RawMessage) []Command {
	items := splitItems(data)
	cmds := make([]Command, 0, len(items))
	for _, item := range items {
		cmds = append(cmds, DecodeCommand(item))
	}
	return cmds
}

// splitItems accepts either an array or a single value.
func splitItems(data json.RawMessage) []json.RawMessage {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '[' {
		return []json.RawMessage{data}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return []json.RawMessage{data}
	}
	return items
}

// Number accepts JSON numbers and numeric strings. Anything else decodes to
// NaN so that the command can reject it instead of failing to decode.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*n = Number(math.NaN())
		return nil
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f = math.NaN()
	}
	*n = Number(f)
	return nil
}

func (n Number) Valid() bool {
	f := float64(n)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Score converts n to a relationship delta, truncating toward zero.
// Values beyond the widest possible swing saturate and keep their sign.
func (n Number) Score() int {
	const limit = relation.MaxScore - relation.MinScore
	return int(math.Max(-limit, math.Min(limit, math.Trunc(float64(n)))))
}

func (n Number) Positive() bool {
	return n.Valid() && n > 0
}

// Stamp is a message timestamp reference given as a number or a string.
type Stamp int64

func (s *Stamp) UnmarshalJSON(b []byte) error {
	var n Number
	if err := n.UnmarshalJSON(b); err != nil || !n.Valid() {
		*s = 0
		return nil
	}
	*s = Stamp(int64(n))
	return nil
}

// ID is an identifier given as a string or a number.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	*id = ID(strings.Trim(string(b), `"`))
	return nil
}

package types

type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "assistant"
	RoleSystem Role = "system"
)

type MessageType string

const (
	MessageText            MessageType = "text"
	MessageSticker         MessageType = "sticker"
	MessageTransfer        MessageType = "transfer"
	MessagePooledGift      MessageType = "pooled_gift"
	MessageTargetedGift    MessageType = "targeted_gift"
	MessageDeliveryRequest MessageType = "delivery_request"
	MessageLinkShare       MessageType = "link_share"
	MessageVoice           MessageType = "voice"
	MessageImage           MessageType = "image"
	MessageNotice          MessageType = "notice"
)

type TransferStatus string

const (
	TransferPending  TransferStatus = "pending"
	TransferAccepted TransferStatus = "accepted"
	TransferDeclined TransferStatus = "declined"
)

type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliveryPaid     DeliveryStatus = "paid"
	DeliveryRejected DeliveryStatus = "rejected"
)

type Quote struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

type Transfer struct {
	Amount float64        `json:"amount"`
	Note   string         `json:"note,omitempty"`
	Status TransferStatus `json:"status"`
}

type Delivery struct {
	Item   string         `json:"item"`
	Amount float64        `json:"amount"`
	Status DeliveryStatus `json:"status"`
	PaidBy string         `json:"paid_by,omitempty"`
}

type Link struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Message is one entry of a transcript. Timestamp doubles as the identity
// key used by quote, claim and respond commands.
type Message struct {
	Role       Role        `json:"role"`
	Type       MessageType `json:"type,omitempty"`
	Sender     string      `json:"sender,omitempty"`
	SenderName string      `json:"sender_name,omitempty"`
	Content    string      `json:"content,omitempty"`
	URL        string      `json:"url,omitempty"`
	Timestamp  int64       `json:"timestamp"`
	Hidden     bool        `json:"hidden,omitempty"`

	Quote    *Quote    `json:"quote,omitempty"`
	Transfer *Transfer `json:"transfer,omitempty"`
	Gift     *Gift     `json:"gift,omitempty"`
	Delivery *Delivery `json:"delivery,omitempty"`
	Link     *Link     `json:"link,omitempty"`
}

// AwaitsReaction reports whether the message is a hidden system hint the
// agent has not reacted to yet.
func (m Message) AwaitsReaction() bool {
	return m.Hidden && m.Role == RoleSystem
}

// Summary renders the message as a single line for prompts and quotes.
func (m Message) Summary() string {
	switch m.Type {
	case "", MessageText, MessageNotice, MessageVoice, MessageImage:
		return m.Content
	case MessageSticker:
		return "[sticker: " + m.Content + "]"
	case MessageTransfer:
		return "[transfer]"
	case MessagePooledGift, MessageTargetedGift:
		return "[red packet]"
	case MessageDeliveryRequest:
		return "[delivery request]"
	case MessageLinkShare:
		if m.Link != nil {
			return "[link] " + m.Link.Title
		}
		return "[link]"
	default:
		return "[" + string(m.Type) + "]"
	}
}

// Transcript is an ordered, bounded message sequence.
type Transcript []Message

// NextStamp returns a timestamp strictly greater than every timestamp in
// the transcript and not earlier than now.
func (t Transcript) NextStamp(now int64) int64 {
	if len(t) == 0 {
		return now
	}
	last := t[len(t)-1].Timestamp
	if now <= last {
		return last + 1
	}
	return now
}

// Append stamps msg, appends it and trims the oldest entries beyond max.
// A non-positive max disables trimming.
func (t Transcript) Append(msg Message, now int64, max int) (Transcript, Message) {
	msg.Timestamp = t.NextStamp(now)
	t = append(t, msg)
	if max > 0 && len(t) > max {
		t = append(Transcript(nil), t[len(t)-max:]...)
	}
	return t, msg
}

// Find returns a pointer to the message with the given timestamp.
func (t Transcript) Find(ts int64) *Message {
	for i := range t {
		if t[i].Timestamp == ts {
			return &t[i]
		}
	}
	return nil
}

func (t Transcript) Last() *Message {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// Tail returns at most the last n messages.
func (t Transcript) Tail(n int) Transcript {
	if n <= 0 || len(t) <= n {
		return t
	}
	return t[len(t)-n:]
}

// Visible drops hidden messages.
func (t Transcript) Visible() Transcript {
	out := make(Transcript, 0, len(t))
	for _, m := range t {
		if !m.Hidden {
			out = append(out, m)
		}
	}
	return out
}

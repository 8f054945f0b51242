package types

// Notifier receives fire-and-forget signals for the presentation layer.
// Scope is the agent or group id owning the transcript.
type Notifier interface {
	MessageAppended(scope string, msg Message)
	EventAppended(evt Event)
}

type NopNotifier struct{}

func (NopNotifier) MessageAppended(string, Message) {}
func (NopNotifier) EventAppended(Event)             {}

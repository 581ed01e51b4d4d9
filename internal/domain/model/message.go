package model

// MessageKind identifies what a Message reports.
type MessageKind string

const (
	MessageKindNotices  MessageKind = "notices"
	MessageKindLectures MessageKind = "lectures"
	MessageKindFailure  MessageKind = "failure"
)

// Message is a rendered delta, ready for any notification backend. Each backend
// picks the fields its service understands.
type Message struct {
	Kind MessageKind
	// Count is the number of items reported. Zero means there is nothing to send.
	Count int
	// Title is the headline used by push services.
	Title string
	// Short is a one-line summary.
	Short string
	// Body is the markdown digest.
	Body string
	// LocalTitle and Lines feed the desktop notification.
	LocalTitle string
	Lines      []string
	// Tags is a "|"-separated tag list (ServerChan3).
	Tags string
}

// Empty reports whether the message carries no items.
func (m Message) Empty() bool {
	return m.Count == 0
}

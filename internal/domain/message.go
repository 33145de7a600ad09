package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageSender string

const (
	SenderUser   MessageSender = "user"
	SenderPeer   MessageSender = "peer"
	SenderSystem MessageSender = "system"
)

// Message is one entry of a room's append-only chat log. Messages are
// never edited or deleted; ordering is by timestamp at delivery time
// because the channel gives no arrival-order guarantee.
type Message struct {
	ID        uuid.UUID     `json:"id"`
	Sender    MessageSender `json:"sender"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewMessage(sender MessageSender, text string) Message {
	return Message{
		ID:        uuid.New(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

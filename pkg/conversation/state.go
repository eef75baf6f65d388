package conversation

import (
	"time"

	"github.com/go-go-golems/jarvis/pkg/turns"
)

// Conversation is an ordered, append-only turn history. The JSON form is the
// persisted shape of the conversation list.
type Conversation struct {
	ID        string       `json:"id" yaml:"id"`
	Title     string       `json:"title" yaml:"title"`
	Turns     []turns.Turn `json:"messages" yaml:"turns"`
	CreatedAt time.Time    `json:"createdAt,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt,omitempty" yaml:"updated_at,omitempty"`
	// Version is incremented by every mutation
	Version int64 `json:"-" yaml:"-"`
}

// Clone returns a deep copy of the turn sequence.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Turns = turns.CloneTurns(c.Turns)
	return &out
}

// Summary is the list view of a conversation.
type Summary struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Turns     int       `json:"turns" yaml:"turns"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}

func (c *Conversation) summary() Summary {
	return Summary{ID: c.ID, Title: c.Title, Turns: len(c.Turns), UpdatedAt: c.UpdatedAt}
}

type ChangeKind string

const (
	ChangeAppended ChangeKind = "appended"
	ChangeRenamed  ChangeKind = "renamed"
	ChangeDeleted  ChangeKind = "deleted"
)

// Change is delivered to subscribers of a conversation.
type Change struct {
	Kind           ChangeKind  `json:"kind"`
	ConversationID string      `json:"conversationId"`
	Turn           *turns.Turn `json:"turn,omitempty"`
	Title          string      `json:"title,omitempty"`
}

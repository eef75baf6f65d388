package conversation

// Package conversation owns the ordered turn history of every conversation.
//
// Conversations are created lazily on the first submission. The agent loop
// receives a read snapshot of the turns and emits new ones through Append;
// it never mutates a Conversation directly.

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/jarvis/pkg/turns"
)

var (
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrEmptyTurn           = errors.New("turn has no parts")
)

// Store defines the conversation operations used by the submission handler
// and the HTTP API.
type Store interface {
	Create(title string, firstTurn *turns.Turn) (string, error)
	Append(id string, t turns.Turn) error
	ListTurns(id string) ([]turns.Turn, error)
	Get(id string) (*Conversation, error)
	List() []Summary
	Delete(id string) error
	Rename(id string, title string) error
	Subscribe(ctx context.Context, id string) <-chan Change
}
